package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// HTTPError is a non-200 answer. 401 and 429 unwrap to ErrUnauthorized and ErrRateLimited.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error: %d for %s", e.StatusCode, e.URL)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case fasthttp.StatusUnauthorized:
		return ErrUnauthorized
	case fasthttp.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// StatusCode extracts the HTTP status of err, 0 when err is not an HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func newFastHTTPClient(readTimeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:     16,
		ReadTimeout:         readTimeout,
		WriteTimeout:        10 * time.Second,
		MaxIdleConnDuration: 1 * time.Minute,
		MaxResponseBodySize: 64 << 20,
	}
}

// doRaw performs a GET and returns a copy of the body of a 200 response.
func doRaw(ctx context.Context, client *fasthttp.Client, url string, headers map[string]string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.DoTimeout(req, resp, constants.ExternalAPITimeout); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), URL: url}
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, url string, headers map[string]string) (*T, error) {
	body, err := doRaw(ctx, client, url, headers)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return &result, nil
}
