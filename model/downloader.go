package model

import "context"

// Catalog lists the products owned by the account.
type Catalog interface {
	ListAll(ctx context.Context) ([]CatalogItem, error)
}

// Resolver looks up what can be downloaded for a product.
type Resolver interface {
	ListFormats(ctx context.Context, productID string) (FileTypeSet, error)
	ResolveURL(ctx context.Context, productID string, format string) (string, error)
}

// Transferer streams a remote file to a local path.
type Transferer interface {
	Download(ctx context.Context, url string, path string) error
}
