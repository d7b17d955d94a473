// Package fetch downloads archives over HTTP(S) with manual redirect
// handling, connect and idle-read timeouts, and byte-level progress.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/renderhost/chrome-installer/internal/logging"
)

const (
	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects = 5

	// DefaultTimeout bounds connect, response headers and body stalls.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent mimics a desktop browser; some mirrors reject bare clients.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	chunkSize = 32 * 1024
)

var errStalled = errors.New("body read stalled")

// ProgressFunc receives the bytes written so far and the expected total
// (0 when the server sent no Content-Length). It is called for every chunk.
type ProgressFunc func(downloaded, total int64)

// Fetcher downloads files. It is safe for concurrent use.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	userAgent  string
	honorProxy bool
}

type Option func(*Fetcher)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent overrides DefaultUserAgent. An empty ua keeps the default.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithProxy routes requests through HTTP_PROXY/HTTPS_PROXY unless NO_PROXY
// matches. Enabled by default.
func WithProxy(enabled bool) Option {
	return func(f *Fetcher) { f.honorProxy = enabled }
}

// New returns a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:    DefaultTimeout,
		userAgent:  DefaultUserAgent,
		honorProxy: true,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Transport: f.newTransport(),
		// Redirects are followed by hand so they can be counted and logged.
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *Fetcher) newTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: f.timeout, KeepAlive: 30 * time.Second}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   f.timeout,
		ResponseHeaderTimeout: f.timeout,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if f.honorProxy {
		t.Proxy = ProxyFromEnvironment()
	}
	return t
}

// ProxyFromEnvironment resolves the proxy for each request from the
// standard proxy variables, upper or lower case.
func ProxyFromEnvironment() func(*http.Request) (*url.URL, error) {
	proxyFunc := httpproxy.FromEnvironment().ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}
}

// Download writes the resource at rawURL to dest, creating parent
// directories. On any failure the partial file is removed. Records are
// logged through the logger carried by ctx.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string, onProgress ProgressFunc) (err error) {
	log := logging.For(ctx, "fetch")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Debug("failed to remove partial download", "path", dest, logging.KeyError, rmErr)
			}
		}
	}()

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, finalURL, err := f.follow(reqCtx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	start := time.Now()
	written, err := f.stream(reqCtx, cancel, resp.Body, out, total, onProgress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("download %s: %w", finalURL, ctxErr)
		}
		if errors.Is(context.Cause(reqCtx), errStalled) {
			return &TimeoutError{URL: finalURL, Timeout: f.timeout, Stage: "read"}
		}
		return &NetworkError{URL: finalURL, Err: err}
	}
	if total > 0 && written != total {
		return &NetworkError{URL: finalURL, Err: fmt.Errorf("short body: got %d of %d bytes", written, total)}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}

	log.Debug("download finished",
		logging.KeyURL, finalURL,
		"bytes", written,
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return nil
}

// follow issues GET requests until a non-redirect response arrives.
func (f *Fetcher) follow(ctx context.Context, rawURL string) (*http.Response, string, error) {
	current := rawURL
	for redirects := 0; ; redirects++ {
		resp, err := f.get(ctx, current)
		if err != nil {
			return nil, current, err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			location, locErr := resp.Location()
			resp.Body.Close()
			if locErr != nil {
				return nil, current, &NetworkError{URL: current, Err: fmt.Errorf("redirect without location: %w", locErr)}
			}
			if redirects >= MaxRedirects {
				return nil, current, fmt.Errorf("GET %s: %w (limit %d)", rawURL, ErrTooManyRedirects, MaxRedirects)
			}
			logging.For(ctx, "fetch").Debug("following redirect", "from", current, "to", location.String())
			current = location.String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, current, &HTTPStatusError{URL: current, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return resp, current, nil
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("download %s: %w", rawURL, ctxErr)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TimeoutError{URL: rawURL, Timeout: f.timeout, Stage: "connect"}
		}
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	return resp, nil
}

// stream copies body to out chunk by chunk. A timer cancels the request
// when no chunk arrives within the timeout.
func (f *Fetcher) stream(ctx context.Context, cancel context.CancelCauseFunc, body io.Reader, out io.Writer, total int64, onProgress ProgressFunc) (int64, error) {
	idle := time.AfterFunc(f.timeout, func() { cancel(errStalled) })
	defer idle.Stop()

	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			idle.Reset(f.timeout)
			if _, err := out.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write: %w", err)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
	}
}
