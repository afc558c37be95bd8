// Package fetch provides the HTTP capability used by the measurement engine,
// with connections made through a configurable outline-sdk transport.
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

const defaultUserAgent = "speedtest-cli/1.0"

// Options contains all the configuration options for the HTTP client
type Options struct {
	// Transport config string, empty for direct TCP
	Transport string
	// Dialer replaces the one built from Transport when set
	Dialer transport.StreamDialer
	// Raw HTTP headers to add (without \r\n)
	Headers []string
	// Timeout in seconds for a whole request including the body (default: 30)
	TimeoutSec int
	// Do not follow redirects
	NoRedirects bool
}

// Result contains the response from a request
type Result struct {
	// HTTP response, body already consumed
	Response *http.Response
	// Response body as bytes
	Body []byte
}

// StatusCode returns the response status, or 0 if there is no response.
func (r *Result) StatusCode() int {
	if r == nil || r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// CheckStatus returns a *StatusError unless the response status is 2xx.
func (r *Result) CheckStatus() error {
	code := r.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	u := ""
	if r != nil && r.Response != nil && r.Response.Request != nil {
		u = r.Response.Request.URL.String()
	}
	return &StatusError{URL: u, StatusCode: code}
}

// Client issues GET and form POST requests. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	header     http.Header
}

// NewClient builds a Client whose connections go through opts.Transport.
func NewClient(opts Options) (*Client, error) {
	if opts.TimeoutSec == 0 {
		opts.TimeoutSec = 30
	}

	dialer := opts.Dialer
	if dialer == nil {
		var err error
		dialer, err = configurl.NewDefaultConfigToDialer().NewStreamDialer(opts.Transport)
		if err != nil {
			return nil, fmt.Errorf("could not create dialer: %w", err)
		}
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}

	header := http.Header{}
	header.Set("User-Agent", defaultUserAgent)
	// Process headers
	if len(opts.Headers) > 0 {
		headerText := strings.Join(opts.Headers, "\r\n") + "\r\n\r\n"
		h, err := textproto.NewReader(bufio.NewReader(strings.NewReader(headerText))).ReadMIMEHeader()
		if err != nil {
			return nil, fmt.Errorf("invalid header line: %w", err)
		}
		for name, values := range h {
			header.Del(name)
			for _, value := range values {
				header.Add(name, value)
			}
		}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: dialContext,
			// throughput phases open many parallel connections to one host
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: time.Duration(opts.TimeoutSec) * time.Second,
	}
	if opts.NoRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{httpClient: httpClient, header: header}, nil
}

// Get fetches rawURL and reads the whole body.
func (c *Client) Get(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// PostForm posts form as application/x-www-form-urlencoded and reads the whole body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// CloseIdleConnections releases pooled connections after a run.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(req *http.Request) (*Result, error) {
	for name, values := range c.header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("read of page body failed: %w", err)}
	}

	return &Result{
		Response: resp,
		Body:     body,
	}, nil
}

// Fetch makes a single GET request with a client built from opts.
func Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	defer c.CloseIdleConnections()
	return c.Get(ctx, rawURL)
}
