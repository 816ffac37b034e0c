// Package catalog talks to the products API: paginated listing of owned
// products, the file types of a product and short-lived download URLs.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"

	"packt-downloader/model"
)

const (
	ProductsPath = "entitlements-v1/users/me/products"
	TypesPath    = "products-v1/products/{productId}/types"
	FilePath     = "products-v1/products/{productId}/files/{format}"

	DefaultPageSize = 10
)

// Authorizer supplies the auth header and handles the refresh-and-retry-once
// policy for 401 responses.
type Authorizer interface {
	Do(ctx context.Context, call func(header string) error) error
}

type Options struct {
	BaseURL  string
	PageSize int
	// OnPage is called after every fetched page with the running item count
	// and the total reported by the service.
	OnPage func(fetched, total int)
	Logger *slog.Logger
}

type Client struct {
	client *resty.Client
	auth   Authorizer
	opts   Options
	logger *slog.Logger
}

func NewClient(client *resty.Client, auth Authorizer, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		client: client,
		auth:   auth,
		opts:   opts,
		logger: opts.Logger,
	}
}

type productsPage struct {
	Count int                 `json:"count"`
	Data  []model.CatalogItem `json:"data"`
}

type typesResponse struct {
	Data []struct {
		FileTypes []string `json:"fileTypes"`
	} `json:"data"`
}

type fileResponse struct {
	Data string `json:"data"`
}

// ListAll fetches every page of the product list in offset order. Any
// failure other than a recovered 401 aborts the listing.
func (c *Client) ListAll(ctx context.Context) ([]model.CatalogItem, error) {
	first, err := c.page(ctx, 0)
	if err != nil {
		return nil, err
	}
	if first.Count < 0 {
		return nil, &model.FetchError{Op: "list products", StatusCode: http.StatusOK, Body: "negative count " + strconv.Itoa(first.Count)}
	}
	c.logger.Info("listing products", "count", first.Count)

	items := make([]model.CatalogItem, 0, len(first.Data))
	items = append(items, first.Data...)
	c.reportPage(len(items), first.Count)

	for i := 1; i < pageCount(first.Count, c.opts.PageSize); i++ {
		page, err := c.page(ctx, i*c.opts.PageSize)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Data...)
		c.reportPage(len(items), first.Count)
	}

	return items, nil
}

// pageCount is ceil(count/size), at least one page.
func pageCount(count, size int) int {
	if count <= size {
		return 1
	}
	return (count + size - 1) / size
}

func (c *Client) reportPage(fetched, total int) {
	if c.opts.OnPage != nil {
		c.opts.OnPage(fetched, total)
	}
}

func (c *Client) page(ctx context.Context, offset int) (*productsPage, error) {
	var page productsPage
	err := c.get(ctx, "list products", ProductsPath, func(r *resty.Request) {
		r.SetQueryParams(map[string]string{
			"sort":   "createdAt:DESC",
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(c.opts.PageSize),
		})
	}, &page)
	if err != nil {
		return nil, fmt.Errorf("failed to get products at offset %d: %w", offset, err)
	}
	c.logger.Debug("fetched product page", "offset", offset, "items", len(page.Data))
	return &page, nil
}

// ListFormats returns the file types offered for a product.
func (c *Client) ListFormats(ctx context.Context, productID string) (model.FileTypeSet, error) {
	var body typesResponse
	err := c.get(ctx, "list file types", TypesPath, func(r *resty.Request) {
		r.SetPathParam("productId", productID)
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to get file types of %s: %w", productID, err)
	}
	if len(body.Data) == 0 {
		return model.FileTypeSet{}, nil
	}
	return model.FileTypeSet(body.Data[0].FileTypes), nil
}

// ResolveURL returns a time-limited download URL for one format of a product.
func (c *Client) ResolveURL(ctx context.Context, productID string, format string) (string, error) {
	var body fileResponse
	err := c.get(ctx, "resolve download url", FilePath, func(r *resty.Request) {
		r.SetPathParams(map[string]string{
			"productId": productID,
			"format":    format,
		})
	}, &body)
	if err != nil {
		return "", fmt.Errorf("failed to get %s url of %s: %w", format, productID, err)
	}
	if _, err := url.ParseRequestURI(body.Data); err != nil {
		return "", &model.FetchError{Op: "resolve download url", StatusCode: http.StatusOK, Body: "invalid url " + strconv.Quote(body.Data)}
	}
	return body.Data, nil
}

// get issues an authorized GET and decodes a 200 response into out. 401 is
// mapped to model.ErrUnauthorized so the Authorizer can refresh and retry.
func (c *Client) get(ctx context.Context, op, path string, prepare func(*resty.Request), out interface{}) error {
	return c.auth.Do(ctx, func(header string) error {
		req := c.client.R().
			SetContext(ctx).
			SetHeader("Authorization", header).
			SetHeader("Accept", "application/json")
		prepare(req)

		resp, err := req.Get(c.opts.BaseURL + path)
		if err != nil {
			return err
		}
		switch resp.StatusCode() {
		case http.StatusOK:
		case http.StatusUnauthorized:
			return model.ErrUnauthorized
		default:
			return &model.FetchError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", op, err)
		}
		return nil
	})
}
