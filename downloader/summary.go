package downloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"packt-downloader/model"
)

// Summary counts the outcome of every target of a run.
type Summary struct {
	mu        sync.Mutex
	Complete  int
	Skipped   int
	Failed    int
	Cancelled bool
	errs      *multierror.Error
}

func (s *Summary) add(status model.TargetStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case model.TargetComplete:
		s.Complete++
	case model.TargetSkipped:
		s.Skipped++
	case model.TargetFailed:
		s.Failed++
	}
}

func (s *Summary) addError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = multierror.Append(s.errs, err)
}

// Err returns every per-item failure of the run, or nil.
func (s *Summary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}

func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d downloaded, %d already present, %d failed", s.Complete, s.Skipped, s.Failed)
}

// CatalogCache is a checkpoint of the enumerated catalog.
type CatalogCache interface {
	Load(ctx context.Context) ([]model.CatalogItem, bool, error)
	Save(ctx context.Context, items []model.CatalogItem) error
}

// LoadCatalog returns the cached catalog when there is one. Otherwise the
// catalog is listed and written to the cache once. fromCache tells which
// path was taken. Listing failures are returned unwrapped; cache failures
// are setup errors.
func LoadCatalog(ctx context.Context, cache CatalogCache, lister model.Catalog) (items []model.CatalogItem, fromCache bool, err error) {
	items, ok, err := cache.Load(ctx)
	if err != nil {
		return nil, false, &model.SetupError{Op: "load catalog cache", Err: err}
	}
	if ok {
		return items, true, nil
	}

	items, err = lister.ListAll(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := cache.Save(ctx, items); err != nil {
		return nil, false, &model.SetupError{Op: "save catalog cache", Err: err}
	}
	return items, false, nil
}
