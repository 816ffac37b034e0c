// Package auth owns the account's bearer token and refreshes it on demand.
//
// The token has no known expiry. Callers find out it expired from a 401 and
// then ask the Manager for a new one. Concurrent refresh requests for the
// same stale token are coalesced into a single login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"packt-downloader/model"
)

const LoginPath = "auth-v1/users/tokens"

// Credential is the account login.
type Credential struct {
	Email    string
	Password string
}

// Token is a snapshot of the current auth header. Generation increases on
// every successful login.
type Token struct {
	Header     string
	Generation uint64
}

type Manager struct {
	client   *resty.Client
	loginURL string
	cred     Credential
	logger   *slog.Logger

	mu    sync.RWMutex
	token Token

	group  singleflight.Group
	logins int
}

type loginResponse struct {
	Data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	} `json:"data"`
}

// NewManager creates a Manager that logs in at baseURL+LoginPath. No request
// is made until Login or RefreshHeader is called.
func NewManager(client *resty.Client, baseURL string, cred Credential, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		loginURL: baseURL + LoginPath,
		cred:     cred,
		logger:   logger,
	}
}

// Login obtains the first token.
func (m *Manager) Login(ctx context.Context) error {
	return m.RefreshHeader(ctx)
}

// Header returns the current Authorization header value.
func (m *Manager) Header() string {
	return m.Current().Header
}

// Current returns the token callers should use and later hand back to
// Invalidate if it is rejected.
func (m *Manager) Current() Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Logins reports how many logins succeeded so far.
func (m *Manager) Logins() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logins
}

// RefreshHeader re-authenticates with the stored credential and replaces the
// token. Concurrent calls share one login.
func (m *Manager) RefreshHeader(ctx context.Context) error {
	_, err, _ := m.group.Do("login", func() (interface{}, error) {
		return nil, m.login(ctx)
	})
	return err
}

// Invalidate refreshes the token unless it already changed since seen was
// taken. All callers that saw the same token wait on a single login.
func (m *Manager) Invalidate(ctx context.Context, seen Token) error {
	_, err, _ := m.group.Do("refresh-"+strconv.FormatUint(seen.Generation, 10), func() (interface{}, error) {
		if m.Current().Generation != seen.Generation {
			return nil, nil
		}
		return nil, m.login(ctx)
	})
	return err
}

// Do runs call with the current header. If call reports
// model.ErrUnauthorized the token is refreshed and call runs exactly once
// more; its result is final.
func (m *Manager) Do(ctx context.Context, call func(header string) error) error {
	seen := m.Current()
	err := call(seen.Header)
	if !errors.Is(err, model.ErrUnauthorized) {
		return err
	}

	m.logger.Debug("token rejected, refreshing", "generation", seen.Generation)
	if err := m.Invalidate(ctx, seen); err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	return call(m.Header())
}

func (m *Manager) login(ctx context.Context) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": m.cred.Email,
			"password": m.cred.Password,
		}).
		Post(m.loginURL)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &model.FetchError{Op: "login", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var body loginResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if body.Data.Access == "" {
		return errors.New("login response carried no access token")
	}

	m.mu.Lock()
	m.token = Token{
		Header:     "Bearer " + body.Data.Access,
		Generation: m.token.Generation + 1,
	}
	m.logins++
	generation := m.token.Generation
	m.mu.Unlock()

	m.logger.Debug("logged in", "generation", generation)
	return nil
}
