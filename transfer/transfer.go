package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"packt-downloader/auth"
)

// PartSuffix marks a file that is still being written.
const PartSuffix = ".part"

const chunkSize = 32 * 1024

var (
	// ErrUnauthorized is returned when the download URL still answers 401
	// after a token refresh.
	ErrUnauthorized = errors.New("transfer: unauthorized after refresh")

	errRetryable = errors.New("transfer: retryable failure")
)

// TransferError is the terminal failure of a download after all attempts.
type TransferError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Credentials is the part of the credential manager the engine needs.
type Credentials interface {
	Current() auth.Token
	Invalidate(ctx context.Context, seen auth.Token) error
}

// Progress receives the bytes of a running transfer.
type Progress interface {
	Track(name string, size int64) io.WriteCloser
}

type Options struct {
	// Attempts is the maximum number of full attempts.
	// Default: 5
	Attempts int

	// Backoff is the wait before the second attempt, doubled afterwards.
	// Default: 1s
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts.
	// Default: 30s
	MaxBackoff time.Duration

	Progress Progress
	Logger   *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Attempts:   5,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Engine streams remote files to disk.
type Engine struct {
	client *resty.Client
	creds  Credentials
	opts   Options
	logger *slog.Logger
}

func NewEngine(client *resty.Client, creds Credentials, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = defaults.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaults.Backoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		client: client,
		creds:  creds,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Download writes the body of url to path. Data goes to path+".part" first
// and is renamed to path only once the whole body has been written, so path
// never holds a truncated file. Failed attempts restart from scratch; a
// cancelled ctx stops at once without retrying.
func (e *Engine) Download(ctx context.Context, url string, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < e.opts.Attempts; attempt++ {
		if attempt > 0 {
			e.logger.Warn("retrying download", "file", filepath.Base(path), "attempt", attempt+1, "error", lastErr)
			if err := e.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := e.attempt(ctx, url, path)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, errRetryable) {
			return err
		}
		lastErr = err
	}

	return &TransferError{URL: url, Attempts: e.opts.Attempts, Err: lastErr}
}

// attempt performs one full transfer. A 401 is answered with one token
// refresh and one more request carrying the new header.
func (e *Engine) attempt(ctx context.Context, url string, path string) error {
	seen := e.creds.Current()
	resp, err := e.get(ctx, url, "")
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		resp.RawBody().Close()
		if err := e.creds.Invalidate(ctx, seen); err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		resp, err = e.get(ctx, url, e.creds.Current().Header)
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			resp.RawBody().Close()
			return ErrUnauthorized
		}
	}
	body := resp.RawBody()
	defer body.Close()

	if err := checkStatusCode(resp.StatusCode()); err != nil {
		return err
	}

	return e.stream(body, resp.RawResponse.ContentLength, path)
}

func (e *Engine) get(ctx context.Context, url string, header string) (*resty.Response, error) {
	req := e.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if header != "" {
		req.SetHeader("Authorization", header)
	}
	resp, err := req.Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}
	return resp, nil
}

func (e *Engine) stream(body io.Reader, size int64, path string) error {
	partPath := path + PartSuffix
	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	var w io.Writer = f
	if e.opts.Progress != nil {
		tracker := e.opts.Progress.Track(filepath.Base(path), size)
		defer tracker.Close()
		w = io.MultiWriter(f, tracker)
	}

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(w, body, buf)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: interrupted after %d bytes: %v", errRetryable, n, err)
	}
	if size > 0 && n != size {
		f.Close()
		return fmt.Errorf("%w: short body, got %d of %d bytes", errRetryable, n, size)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(partPath, path); err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	e.logger.Debug("downloaded", "file", filepath.Base(path), "bytes", n)
	return nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	backoff := e.opts.Backoff * time.Duration(1<<uint(attempt-1))
	if backoff > e.opts.MaxBackoff {
		backoff = e.opts.MaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// checkStatusCode classifies a download response. Server errors and
// throttling are worth another attempt, other client errors are not.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d", errRetryable, code)
	default:
		return fmt.Errorf("transfer: unexpected status %d", code)
	}
}
