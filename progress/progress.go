// Package progress renders terminal progress bars for listing, items and
// file transfers.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type Options struct {
	// Quiet disables every bar.
	Quiet bool
	// PerFile shows a byte bar for each transfer instead of the item bar.
	// Only sensible with a single worker.
	PerFile bool
}

// Reporter draws bars on w. The zero value of a disabled reporter is safe to
// use; all methods become no-ops.
type Reporter struct {
	w    io.Writer
	opts Options

	mu    sync.Mutex
	pages *progressbar.ProgressBar
	items *progressbar.ProgressBar
}

func New(w io.Writer, opts Options) *Reporter {
	return &Reporter{w: w, opts: opts}
}

func (r *Reporter) enabled() bool {
	return r != nil && r.w != nil && !r.opts.Quiet
}

func (r *Reporter) newBar(max int64, description string, bytes bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(description),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.w)
		}),
	}
	if bytes {
		opts = append(opts, progressbar.OptionShowBytes(true))
	} else {
		opts = append(opts, progressbar.OptionShowCount())
	}
	return progressbar.NewOptions64(max, opts...)
}

// Pages follows catalog listing; it matches catalog.Options.OnPage.
func (r *Reporter) Pages(fetched, total int) {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pages == nil {
		r.pages = r.newBar(int64(total), "listing", false)
	}
	r.pages.Set(fetched)
	if fetched >= total {
		r.pages.Finish()
		r.pages = nil
	}
}

// Items starts the per-item bar for a run over total items.
func (r *Reporter) Items(total int) {
	if !r.enabled() || r.opts.PerFile {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.newBar(int64(total), "items", false)
}

// ItemDone advances the item bar.
func (r *Reporter) ItemDone(name string) {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items != nil {
		r.items.Describe(name)
		r.items.Add(1)
	}
}

// Done finishes any open bar.
func (r *Reporter) Done() {
	if !r.enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items != nil {
		r.items.Finish()
		r.items = nil
	}
}

// Track returns a sink for the bytes of one transfer. size is -1 when the
// server did not announce a length.
func (r *Reporter) Track(name string, size int64) io.WriteCloser {
	if !r.enabled() || !r.opts.PerFile {
		return nopCloser{io.Discard}
	}
	if size <= 0 {
		size = -1
	}
	return &fileBar{bar: r.newBar(size, name, true)}
}

type fileBar struct {
	bar *progressbar.ProgressBar
}

func (f *fileBar) Write(p []byte) (int, error) {
	return f.bar.Write(p)
}

func (f *fileBar) Close() error {
	return f.bar.Finish()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
