package utils

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

type ClientOptions struct {
	// Timeout bounds a whole request. Zero disables it, which is what
	// file transfers want.
	Timeout time.Duration

	// RetryCount is how often a throttled (429) request is retried by resty
	// itself. Transport errors are returned to the caller unretried.
	RetryCount int

	RetryWaitTime time.Duration

	Logger *slog.Logger
}

func NewRestyClient(opts ClientOptions) *resty.Client {
	if opts.RetryWaitTime == 0 {
		opts.RetryWaitTime = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := resty.New()
	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	})
	client.SetTimeout(opts.Timeout)
	client.SetLogger(slogLogger{opts.Logger})
	client.SetHeader("User-Agent", userAgent)
	client.SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
					if t, err := http.ParseTime(retryAfter); err == nil {
						return time.Until(t), nil
					}
				}
			}
			return opts.RetryWaitTime, nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	return client
}

// slogLogger routes resty's own diagnostics to debug output.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(format string, v ...interface{}) {
	s.l.Debug("resty: " + fmt.Sprintf(format, v...))
}

func (s slogLogger) Warnf(format string, v ...interface{}) {
	s.l.Debug("resty: " + fmt.Sprintf(format, v...))
}

func (s slogLogger) Debugf(format string, v ...interface{}) {
	s.l.Debug("resty: " + fmt.Sprintf(format, v...))
}
