package bsda

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-cleanhttp"     // required by go-retryablehttp
	"github.com/hashicorp/go-retryablehttp" // use http libraries from hashicorp for implement retry logic
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	minRetryTime  = 1   // seconds
	maxRetryTime  = 120 // seconds
	maxRetryCount = 10
	userAgent     = "bs-invade: BaseSpace download agent"

	// An API request to the BaseSpace servers should never take more
	// than this amount of time
	bsApiOverallTimeout = 10 * time.Minute
)

// StatusError is a non-2xx reply that survived the retry policy.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request to '%s' failed with status %s", e.Method, e.URL, e.Status)
}

// Good status is in the range 2xx
func isGood(statusCode int) bool {
	return 200 <= statusCode && statusCode < 300
}

// retryLogger sends retryablehttp's internal logging to zerolog.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}
func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}
func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}
func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// These clients are intended for reuse in the same host. Throwing them
// away will gradually leak file descriptors.
func NewHttpClient(logger zerolog.Logger) (*retryablehttp.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	localCertFile := os.Getenv("BS_TLS_CERTIFICATE_FILE")
	if localCertFile != "" {
		insecure := os.Getenv("BS_TLS_SKIP_VERIFY") == "true"

		// Get the SystemCertPool, continue with an empty pool on error
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(localCertFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading certificate file %s", localCertFile)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			logger.Warn().Str("file", localCertFile).Msg("No certs appended, using system certs only")
		}
		tr.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: insecure,
			RootCAs:            rootCAs,
		}
	}

	return &retryablehttp.Client{
		HTTPClient:   &http.Client{Transport: tr},
		Logger:       retryLogger{logger: logger},
		RetryWaitMin: minRetryTime * time.Second,
		RetryWaitMax: maxRetryTime * time.Second,
		RetryMax:     maxRetryCount,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}, nil
}

// BsHttpRequest issues a request and returns the open response. The caller
// owns the body. Non-2xx replies are drained and returned as *StatusError.
func BsHttpRequest(
	ctx context.Context,
	client *retryablehttp.Client,
	requestType string,
	url string,
	headers map[string]string) (*http.Response, error) {

	req, err := retryablehttp.NewRequestWithContext(ctx, requestType, url, nil)
	if err != nil {
		return nil, err
	}
	for header, value := range headers {
		req.Header.Set(header, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if !isGood(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{
			Method:     requestType,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	return resp, nil
}

// BsEnvironment is where and as whom API calls are made.
type BsEnvironment struct {
	ApiServer    string
	ApiVersion   string
	AccessToken  string
	AppSessionId string
}

func NewBsEnvironment(c Config) BsEnvironment {
	return BsEnvironment{
		ApiServer:    c.ApiServer,
		ApiVersion:   c.ApiVersion,
		AccessToken:  c.AccessToken,
		AppSessionId: c.AppSessionId,
	}
}

// BsAPI - Function to wrap a generic GET call to BaseSpace. The body of a
// successful reply is returned.
func BsAPI(
	ctx context.Context,
	client *retryablehttp.Client,
	bsEnv *BsEnvironment,
	api string,
	query url.Values) ([]byte, error) {
	if bsEnv.AccessToken == "" {
		return nil, errors.New("The access token is not set")
	}
	headers := map[string]string{
		"User-Agent":     userAgent,
		"x-access-token": bsEnv.AccessToken,
		"Accept":         "application/json",
	}
	if bsEnv.AppSessionId != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("appsessionid", bsEnv.AppSessionId)
	}
	u := fmt.Sprintf("%s/%s/%s", bsEnv.ApiServer, bsEnv.ApiVersion, api)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	// Safety procedure to force timeout to prevent hanging
	ctx, cancel := context.WithTimeout(ctx, bsApiOverallTimeout)
	defer cancel()

	resp, err := BsHttpRequest(ctx, client, "GET", u, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading reply of %s", api)
	}
	return body, nil
}
