package bsda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/crc64nvme"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// Downloader transfers one file to local disk. With recreateTree set the
// file lands under <outputDir>/<project>/<sample>/<remote path>, otherwise
// directly in outputDir. Errors are not retried by callers.
type Downloader interface {
	Download(ctx context.Context, f FileEntry, outputDir string, recreateTree bool) (DownloadResult, error)
}

// DownloadResult describes a file written to disk.
type DownloadResult struct {
	LocalPath string
	Bytes     int64
	Checksum  string // CRC64NVME of the content
}

type contentReply struct {
	Response struct {
		HrefContent   string `json:"HrefContent"`
		SupportsRange bool   `json:"SupportsRange"`
		Expires       string `json:"Expires"`
	} `json:"Response"`
}

// HttpDownloader fetches content through the pre-signed URL BaseSpace hands
// out for each file.
type HttpDownloader struct {
	client *Client

	// byte level progress bar destination, nil for none
	progress io.Writer
}

func NewHttpDownloader(client *Client, progress io.Writer) *HttpDownloader {
	return &HttpDownloader{client: client, progress: progress}
}

// replace characters that would change the directory structure
func sanitizeComponent(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// LocalPath is where a file is written, always inside outputDir.
func LocalPath(f FileEntry, outputDir string, recreateTree bool) (string, error) {
	var dest string
	if recreateTree {
		remote := f.Path
		if remote == "" {
			remote = f.Name
		}
		dest = filepath.Join(outputDir,
			sanitizeComponent(f.ProjectName),
			sanitizeComponent(f.SampleName),
			filepath.FromSlash(strings.TrimLeft(remote, "/")))
	} else {
		dest = filepath.Join(outputDir, sanitizeComponent(f.Name))
	}

	rel, err := filepath.Rel(outputDir, dest)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %s resolves outside of the output directory (%s)", f.Id, dest)
	}
	return dest, nil
}

func (d *HttpDownloader) contentURL(ctx context.Context, f FileEntry) (string, error) {
	query := url.Values{}
	query.Set("redirect", "meta")
	body, err := BsAPI(ctx, d.client.httpClient, &d.client.bsEnv,
		fmt.Sprintf("files/%s/content", url.PathEscape(f.Id)), query)
	if err != nil {
		return "", err
	}
	var reply contentReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", errors.Wrap(err, "could not unmarshal content location")
	}
	if reply.Response.HrefContent == "" {
		return "", fmt.Errorf("no content location returned for file %s", f.Id)
	}
	return reply.Response.HrefContent, nil
}

func (d *HttpDownloader) newProgressBar(f FileEntry) io.Writer {
	if d.progress == nil {
		return io.Discard
	}
	size := f.Size
	if size <= 0 {
		size = -1
	}
	progress := d.progress
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(f.Name),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(progress, "\n")
		}),
	)
}

// Download streams the content of f to disk. A failed transfer leaves
// whatever was written in place.
func (d *HttpDownloader) Download(
	ctx context.Context,
	f FileEntry,
	outputDir string,
	recreateTree bool) (DownloadResult, error) {

	var result DownloadResult
	dest, err := LocalPath(f, outputDir, recreateTree)
	if err != nil {
		return result, err
	}

	href, err := d.contentURL(ctx, f)
	if err != nil {
		return result, errors.Wrapf(err, "locating content of %s", f.Id)
	}

	// the pre-signed URL carries its own authorization
	resp, err := BsHttpRequest(ctx, d.client.httpClient, "GET", href,
		map[string]string{"User-Agent": userAgent})
	if err != nil {
		return result, errors.Wrapf(err, "downloading %s", f.Id)
	}
	defer resp.Body.Close()

	if err := SafeMakedir(filepath.Dir(dest)); err != nil {
		return result, err
	}
	localf, err := os.Create(dest)
	if err != nil {
		return result, err
	}
	defer localf.Close()

	hasher := crc64nvme.New()
	bar := d.newProgressBar(f)
	w := io.MultiWriter(localf, hasher, bar)
	n, err := io.CopyBuffer(w, resp.Body, make([]byte, copyBufferSize()))
	if err != nil {
		return result, errors.Wrapf(err, "writing %s", dest)
	}
	if f.Size > 0 && n != f.Size {
		return result, fmt.Errorf("received length is wrong for %s, got %d, expected %d", f.Id, n, f.Size)
	}
	if err := localf.Sync(); err != nil {
		return result, err
	}

	result.LocalPath = dest
	result.Bytes = n
	result.Checksum = uint64ToBase64String(hasher.Sum64())
	return result, nil
}
