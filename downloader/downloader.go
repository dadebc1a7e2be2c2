// Package downloader saves exported media files to disk.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/webexporter/exporter"
	"github.com/use-agent/webexporter/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Config holds downloader settings.
type Config struct {
	Dir      string
	Rate     float64 // downloads per second, 0 for unlimited
	Burst    int
	Timeout  time.Duration
	MaxBytes int64
}

// Client downloads files into Config.Dir, renaming on conflict the way
// browsers do ("a.jpg", "a (1).jpg", ...).
type Client struct {
	dir      string
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
}

// New creates a Client.
func New(cfg Config) *Client {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		dir: cfg.Dir,
		client: &http.Client{
			Transport: newTransport(10 * time.Second),
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limiter:  rate.NewLimiter(limit, burst),
		maxBytes: cfg.MaxBytes,
	}
}

// Download fetches f.URL and writes it below the download directory. It
// returns the path written.
func (c *Client) Download(ctx context.Context, f exporter.File) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", models.NewError(models.ErrCodeCancelled, "download throttled", err)
	}

	name, err := c.target(f.Filename)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", models.NewError(models.ErrCodeInvalidInput, "invalid download url", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	if f.Referer != "" {
		req.Header.Set("Referer", f.Referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloader: get %s: %w", f.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("downloader: get %s: status %d", f.URL, resp.StatusCode)
	}

	out, path, err := createUnique(name)
	if err != nil {
		return "", err
	}
	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		// One byte over the cap tells a full file from a truncated one.
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("downloader: write %s: %w", path, err)
	}
	if c.maxBytes > 0 && n > c.maxBytes {
		os.Remove(path)
		return "", models.Errorf(models.ErrCodeInvalidInput, "download %s exceeds %d bytes", f.URL, c.maxBytes)
	}

	slog.Info("downloaded", "url", f.URL, "path", path, "bytes", n)
	return path, nil
}

// target joins filename onto the download directory, refusing names that
// would escape it.
func (c *Client) target(filename string) (string, error) {
	if filename == "" {
		return "", models.Errorf(models.ErrCodeInvalidInput, "empty download filename")
	}
	clean := filepath.Clean(filepath.FromSlash(filename))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", models.Errorf(models.ErrCodeInvalidInput, "download filename %q escapes the download directory", filename)
	}
	path := filepath.Join(c.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("downloader: %w", err)
	}
	return path, nil
}

// createUnique creates path, or the first free "name (n).ext" beside it.
func createUnique(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 0; n < 10000; n++ {
		candidate := path
		if n > 0 {
			candidate = stem + " (" + strconv.Itoa(n) + ")" + ext
		}
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("downloader: %w", err)
		}
	}
	return nil, "", fmt.Errorf("downloader: no free name for %s", path)
}
