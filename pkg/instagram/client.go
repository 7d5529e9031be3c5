package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client fetches media files over HTTP
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	cookies    []*http.Cookie
	mu         sync.RWMutex
	logger     logger.Logger
}

// NewClient creates a new media client
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      defaultUserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "identity",
			"Referer":         BaseURL + "/",
			"Origin":          BaseURL,
			"Sec-Fetch-Dest":  "video",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "cross-site",
		},
		logger: log,
	}
}

// SetHTTPClient replaces the underlying http.Client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetUserAgent matches the HTTP user agent to the browser's
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.SetHeader("User-Agent", ua)
	}
}

// SetCookies replaces the cookies sent with every request
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = append([]*http.Cookie(nil), cookies...)
}

// doRequest performs an HTTP request with the configured headers and cookies
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "network error", err)
	}

	logger.LogRequest(req.Method, req.URL.String(), resp.StatusCode, float64(duration.Milliseconds()))
	return resp, nil
}

// OpenMedia issues a GET for a media locator and returns the body stream and
// the advertised length (-1 when unknown). Non-2xx statuses are closed and
// mapped to typed errors.
func (c *Client) OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, int64, error) {
	if !IsFetchable(mediaURL) {
		return nil, 0, errs.TransferError("unsupported locator", 0, fmt.Errorf("cannot fetch %q", mediaURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, 0, errs.TransferError("invalid request", 0, err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, 0, err
	}

	if err := c.checkResponseStatus(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, 0, err
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && strings.HasPrefix(ct, "text/html") {
		resp.Body.Close()
		return nil, 0, errs.TransferError("received an HTML page instead of media", resp.StatusCode, nil)
	}

	return resp.Body, resp.ContentLength, nil
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("media access denied", fields)
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "media access denied", Reason: resp.Status, Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		c.logger.WarnWithFields("media not found", fields)
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "media not found", Reason: resp.Status, Code: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Reason: resp.Status, Code: resp.StatusCode}
	case resp.StatusCode >= 500:
		c.logger.WarnWithFields("server error", fields)
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Reason: resp.Status, Code: resp.StatusCode}
	default:
		c.logger.WarnWithFields("unexpected media response", fields)
		return errs.TransferError(resp.Status, resp.StatusCode, nil)
	}
}
