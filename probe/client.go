package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/logging"
)

const (
	maxRedirects = 3
	maxBodyBytes = 2 << 20
	fetchRetries = 2
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string      // Final URL after redirects
	StatusCode int         // HTTP status code
	Header     http.Header // Response headers
	Body       []byte      // Body, truncated to 2 MiB
}

// IsHTML reports whether the response declares an HTML body.
func (r *Response) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "text/html")
}

// Client issues the outbound probes of the detectors. Every request waits
// on a shared rate limiter.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.SugaredLogger
	backoff   time.Duration
}

func New(cfg config.ProbeConfig, log *zap.SugaredLogger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "WP-VulScan/1.0"
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: ua,
		log:       logging.OrNop(log).With("component", "probe"),
		backoff:   time.Second,
	}
}

// HeadOrGet sends HEAD and falls back to GET once when the server rejects
// HEAD (status 0, 400 or 405).
func (c *Client) HeadOrGet(ctx context.Context, url string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case 0, http.StatusBadRequest, http.StatusMethodNotAllowed:
		c.log.Debugw("HEAD rejected, retrying with GET", "url", url, "status", resp.StatusCode)
		return c.do(ctx, http.MethodGet, url)
	}
	return resp, nil
}

// Get fetches url with GET.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Fetch downloads url, retrying on transport errors and non-200 statuses.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var err error

	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var resp *Response
		resp, err = c.do(ctx, http.MethodGet, url)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("HTTP status %d", resp.StatusCode)
			continue
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", fetchRetries, err)
}

func (c *Client) do(ctx context.Context, method, url string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
