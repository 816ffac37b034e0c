package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"packt-downloader/auth"
	"packt-downloader/logging"
	"packt-downloader/model"
	"packt-downloader/utils"
)

// fakeService serves the login, products, types and files endpoints.
type fakeService struct {
	t        *testing.T
	count    int
	logins   atomic.Int32
	mu       sync.Mutex
	offsets  []int
	expire   map[string]bool // path -> reject the first token once
	failPath string

	// failOffset makes the products page at this offset fail; zero disables it.
	failOffset int
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	w.Header().Set("Content-Type", "application/json")

	if path == auth.LoginPath {
		n := f.logins.Add(1)
		fmt.Fprintf(w, `{"data":{"access":"token-%d"}}`, n)
		return
	}

	f.mu.Lock()
	reject := f.expire[path] && r.Header.Get("Authorization") == "Bearer token-1"
	if reject {
		delete(f.expire, path)
	}
	f.mu.Unlock()
	if reject {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if path == f.failPath {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
		return
	}

	switch {
	case path == ProductsPath:
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		f.mu.Lock()
		f.offsets = append(f.offsets, offset)
		f.mu.Unlock()
		if f.failOffset != 0 && offset == f.failOffset {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"boom"}`)
			return
		}

		var items []string
		for i := offset; i < offset+limit && i < f.count; i++ {
			items = append(items, fmt.Sprintf(`{"productId":"%d","productName":"Book %d"}`, i, i))
		}
		fmt.Fprintf(w, `{"count":%d,"data":[%s]}`, f.count, strings.Join(items, ","))
	case strings.HasSuffix(path, "/types"):
		fmt.Fprint(w, `{"data":[{"fileTypes":["pdf","epub","code"]}]}`)
	case strings.Contains(path, "/files/"):
		parts := strings.Split(path, "/")
		fmt.Fprintf(w, `{"data":"https://cdn.example.com/%s.%s"}`, parts[2], parts[4])
	default:
		f.t.Errorf("unexpected path %s", path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, svc *fakeService, pageSize int) (*Client, *auth.Manager) {
	t.Helper()
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)

	rc := utils.NewRestyClient(utils.ClientOptions{Timeout: 5 * time.Second, Logger: logging.Discard()})
	base := server.URL + "/"
	m := auth.NewManager(rc, base, auth.Credential{Email: "reader@example.com", Password: "secret"}, logging.Discard())
	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return NewClient(rc, m, Options{BaseURL: base, PageSize: pageSize, Logger: logging.Discard()}), m
}

func TestListAllPaginates(t *testing.T) {
	svc := &fakeService{t: t, count: 25}
	client, _ := newTestClient(t, svc, 10)

	var pages []int
	client.opts.OnPage = func(fetched, total int) {
		pages = append(pages, fetched)
		if total != 25 {
			t.Errorf("expected total 25, got %d", total)
		}
	}

	items, err := client.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	if !slices.Equal(svc.offsets, []int{0, 10, 20}) {
		t.Errorf("expected offsets [0 10 20], got %v", svc.offsets)
	}
	if len(items) != 25 {
		t.Fatalf("expected 25 items, got %d", len(items))
	}
	seen := make(map[string]bool)
	for i, item := range items {
		if item.ProductID != strconv.Itoa(i) {
			t.Errorf("item %d out of order: %s", i, item.ProductID)
		}
		if seen[item.ProductID] {
			t.Errorf("duplicate item %s", item.ProductID)
		}
		seen[item.ProductID] = true
	}
	if !slices.Equal(pages, []int{10, 20, 25}) {
		t.Errorf("unexpected page progress %v", pages)
	}
}

func TestListAllSinglePage(t *testing.T) {
	tests := []struct {
		count   int
		fetches int
	}{
		{0, 1},
		{7, 1},
		{10, 1},
		{20, 2},
	}

	for _, tt := range tests {
		svc := &fakeService{t: t, count: tt.count}
		client, _ := newTestClient(t, svc, 10)

		items, err := client.ListAll(context.Background())
		if err != nil {
			t.Fatalf("ListAll(count=%d): %v", tt.count, err)
		}
		if len(items) != tt.count {
			t.Errorf("count=%d: expected %d items, got %d", tt.count, tt.count, len(items))
		}
		if len(svc.offsets) != tt.fetches {
			t.Errorf("count=%d: expected %d fetches, got %d", tt.count, tt.fetches, len(svc.offsets))
		}
	}
}

func TestListAllRejectsNegativeCount(t *testing.T) {
	svc := &fakeService{t: t, count: -1}
	client, _ := newTestClient(t, svc, 10)

	items, err := client.ListAll(context.Background())
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", fetchErr.StatusCode)
	}
	if items != nil {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestListAllAbortsMidway(t *testing.T) {
	svc := &fakeService{t: t, count: 35, failOffset: 20}
	client, _ := newTestClient(t, svc, 10)

	items, err := client.ListAll(context.Background())
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", fetchErr.StatusCode)
	}
	if items != nil {
		t.Errorf("expected no partial items, got %d", len(items))
	}
	if !slices.Equal(svc.offsets, []int{0, 10, 20}) {
		t.Errorf("expected listing to stop at offset 20, got %v", svc.offsets)
	}
}

func TestListAllAbortsOnError(t *testing.T) {
	svc := &fakeService{t: t, count: 25, failPath: ProductsPath}
	client, _ := newTestClient(t, svc, 10)

	_, err := client.ListAll(context.Background())
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", fetchErr.StatusCode)
	}
	if !strings.Contains(fetchErr.Body, "boom") {
		t.Errorf("expected body in error, got %q", fetchErr.Body)
	}
}

func TestListAllRecovers401(t *testing.T) {
	svc := &fakeService{t: t, count: 5, expire: map[string]bool{ProductsPath: true}}
	client, m := newTestClient(t, svc, 10)

	items, err := client.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("expected 5 items, got %d", len(items))
	}
	if m.Logins() != 2 {
		t.Errorf("expected exactly one refresh, got %d logins", m.Logins())
	}
}

func TestListFormats(t *testing.T) {
	svc := &fakeService{t: t}
	client, _ := newTestClient(t, svc, 10)

	formats, err := client.ListFormats(context.Background(), "42")
	if err != nil {
		t.Fatalf("ListFormats: %v", err)
	}
	if !slices.Equal([]string(formats), []string{"pdf", "epub", "code"}) {
		t.Errorf("unexpected formats %v", formats)
	}
}

func TestListFormatsRecovers401(t *testing.T) {
	svc := &fakeService{t: t, expire: map[string]bool{"products-v1/products/42/types": true}}
	client, m := newTestClient(t, svc, 10)

	if _, err := client.ListFormats(context.Background(), "42"); err != nil {
		t.Fatalf("ListFormats: %v", err)
	}
	if m.Logins() != 2 {
		t.Errorf("expected exactly one refresh, got %d logins", m.Logins())
	}
}

func TestListFormatsError(t *testing.T) {
	svc := &fakeService{t: t, failPath: "products-v1/products/42/types"}
	client, _ := newTestClient(t, svc, 10)

	_, err := client.ListFormats(context.Background(), "42")
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestResolveURL(t *testing.T) {
	svc := &fakeService{t: t, expire: map[string]bool{"products-v1/products/42/files/pdf": true}}
	client, m := newTestClient(t, svc, 10)

	u, err := client.ResolveURL(context.Background(), "42", "pdf")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if u != "https://cdn.example.com/42.pdf" {
		t.Errorf("unexpected url %s", u)
	}
	if m.Logins() != 2 {
		t.Errorf("expected exactly one refresh, got %d logins", m.Logins())
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		count, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{30, 10, 3},
	}
	for _, tt := range tests {
		if got := pageCount(tt.count, tt.size); got != tt.want {
			t.Errorf("pageCount(%d, %d) = %d, want %d", tt.count, tt.size, got, tt.want)
		}
	}
}
