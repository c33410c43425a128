package bsda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Limit on the number of items BaseSpace returns for one list request
const (
	maxItemsPerPage = 1024
)

// Inventory is the read-only view of a user's BaseSpace content.
type Inventory interface {
	CurrentUser(ctx context.Context) (*User, error)
	ListProjects(ctx context.Context) ([]Project, error)
	ListSamples(ctx context.Context, p Project) ([]Sample, error)
	ListFiles(ctx context.Context, s Sample) ([]FileEntry, error)
}

// BaseSpace wraps every reply in a Response object; list replies carry a
// page of items.
type userReply struct {
	Response User `json:"Response"`
}

type listReply[T any] struct {
	Response struct {
		Items          []T `json:"Items"`
		DisplayedCount int `json:"DisplayedCount"`
		TotalCount     int `json:"TotalCount"`
		Offset         int `json:"Offset"`
		Limit          int `json:"Limit"`
	} `json:"Response"`
}

// Client talks to the BaseSpace REST API.
type Client struct {
	bsEnv      BsEnvironment
	httpClient *retryablehttp.Client
	pageSize   int
}

func NewClient(bsEnv BsEnvironment, httpClient *retryablehttp.Client) *Client {
	return &Client{
		bsEnv:      bsEnv,
		httpClient: httpClient,
		pageSize:   maxItemsPerPage,
	}
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	body, err := BsAPI(ctx, c.httpClient, &c.bsEnv, "users/current", nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetching current user")
	}
	var reply userReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal current user")
	}
	return &reply.Response, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	return listAll[Project](ctx, c, "users/current/projects")
}

func (c *Client) ListSamples(ctx context.Context, p Project) ([]Sample, error) {
	samples, err := listAll[Sample](ctx, c, fmt.Sprintf("projects/%s/samples", url.PathEscape(p.Id)))
	if err != nil {
		return nil, err
	}
	for i := range samples {
		samples[i].ProjectId = p.Id
		samples[i].ProjectName = p.Name
	}
	return samples, nil
}

func (c *Client) ListFiles(ctx context.Context, s Sample) ([]FileEntry, error) {
	files, err := listAll[FileEntry](ctx, c, fmt.Sprintf("samples/%s/files", url.PathEscape(s.Id)))
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].SampleId = s.Id
		files[i].SampleName = s.Name
		files[i].ProjectId = s.ProjectId
		files[i].ProjectName = s.ProjectName
	}
	return files, nil
}

// Fetch every page of a list resource, in the order the server returns them.
func listAll[T any](ctx context.Context, c *Client, api string) ([]T, error) {
	var items []T
	offset := 0
	for {
		query := url.Values{}
		query.Set("Offset", strconv.Itoa(offset))
		query.Set("Limit", strconv.Itoa(c.pageSize))

		body, err := BsAPI(ctx, c.httpClient, &c.bsEnv, api, query)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", api)
		}
		var reply listReply[T]
		if err := json.Unmarshal(body, &reply); err != nil {
			return nil, errors.Wrapf(err, "could not unmarshal reply of %s", api)
		}
		page := reply.Response.Items
		items = append(items, page...)
		offset += len(page)

		if len(page) == 0 || offset >= reply.Response.TotalCount {
			return items, nil
		}
	}
}
