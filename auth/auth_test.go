package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"packt-downloader/logging"
	"packt-downloader/model"
	"packt-downloader/utils"
)

func newLoginServer(t *testing.T, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+LoginPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode login body: %v", err)
		}
		if body["username"] != "reader@example.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		time.Sleep(delay)
		n := logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"access":"token-%d","refresh":"r"}}`, n)
	}))
	t.Cleanup(server.Close)
	return server, &logins
}

func newManager(t *testing.T, baseURL string, cred Credential) *Manager {
	t.Helper()
	client := utils.NewRestyClient(utils.ClientOptions{Timeout: 5 * time.Second, Logger: logging.Discard()})
	return NewManager(client, baseURL+"/", cred, logging.Discard())
}

var testCred = Credential{Email: "reader@example.com", Password: "secret"}

func TestLoginAndRefresh(t *testing.T) {
	server, logins := newLoginServer(t, 0)
	m := newManager(t, server.URL, testCred)

	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := m.Header(); got != "Bearer token-1" {
		t.Errorf("expected 'Bearer token-1', got %q", got)
	}

	if err := m.RefreshHeader(context.Background()); err != nil {
		t.Fatalf("RefreshHeader: %v", err)
	}
	if got := m.Header(); got != "Bearer token-2" {
		t.Errorf("expected 'Bearer token-2', got %q", got)
	}
	if logins.Load() != 2 {
		t.Errorf("expected 2 logins, got %d", logins.Load())
	}
	if m.Current().Generation != 2 {
		t.Errorf("expected generation 2, got %d", m.Current().Generation)
	}
}

func TestLoginRejected(t *testing.T) {
	server, _ := newLoginServer(t, 0)
	m := newManager(t, server.URL, Credential{Email: "reader@example.com", Password: "wrong"})

	err := m.Login(context.Background())
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", fetchErr.StatusCode)
	}
}

func TestInvalidateCoalesces(t *testing.T) {
	server, logins := newLoginServer(t, 100*time.Millisecond)
	m := newManager(t, server.URL, testCred)
	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	seen := m.Current()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Invalidate(context.Background(), seen); err != nil {
				t.Errorf("Invalidate: %v", err)
			}
		}()
	}
	wg.Wait()

	if logins.Load() != 2 {
		t.Errorf("expected exactly one refresh login, got %d logins", logins.Load())
	}

	// A caller holding the old token after the refresh must not log in again.
	if err := m.Invalidate(context.Background(), seen); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if logins.Load() != 2 {
		t.Errorf("stale invalidate caused a login, got %d logins", logins.Load())
	}
}

func TestDoRefreshesOnce(t *testing.T) {
	server, logins := newLoginServer(t, 0)
	m := newManager(t, server.URL, testCred)
	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var headers []string
	err := m.Do(context.Background(), func(header string) error {
		headers = append(headers, header)
		if len(headers) == 1 {
			return model.ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if len(headers) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(headers))
	}
	if headers[0] != "Bearer token-1" || headers[1] != "Bearer token-2" {
		t.Errorf("unexpected headers %v", headers)
	}
	if logins.Load() != 2 {
		t.Errorf("expected exactly one refresh, got %d logins", logins.Load())
	}
}

func TestDoGivesUpAfterSecond401(t *testing.T) {
	server, _ := newLoginServer(t, 0)
	m := newManager(t, server.URL, testCred)
	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	calls := 0
	err := m.Do(context.Background(), func(string) error {
		calls++
		return model.ErrUnauthorized
	})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
