package mocks

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// FakeConnector hands out a fixed repository and counts connects
type FakeConnector struct {
	Repo remote.Repository

	ConnectDirectFunc func(ctx context.Context, serverURL, username, password string) (remote.Repository, error)
	ConnectOAuthFunc  func(ctx context.Context, bundle *types.OAuthBundle) (remote.Repository, error)

	directCalls int32
	oauthCalls  int32
}

func (c *FakeConnector) ConnectDirect(ctx context.Context, serverURL, username, password string) (remote.Repository, error) {
	atomic.AddInt32(&c.directCalls, 1)
	if c.ConnectDirectFunc != nil {
		return c.ConnectDirectFunc(ctx, serverURL, username, password)
	}
	return c.Repo, nil
}

func (c *FakeConnector) ConnectOAuth(ctx context.Context, bundle *types.OAuthBundle) (remote.Repository, error) {
	atomic.AddInt32(&c.oauthCalls, 1)
	if c.ConnectOAuthFunc != nil {
		return c.ConnectOAuthFunc(ctx, bundle)
	}
	return c.Repo, nil
}

// DirectCalls returns the number of ConnectDirect calls
func (c *FakeConnector) DirectCalls() int {
	return int(atomic.LoadInt32(&c.directCalls))
}

// OAuthCalls returns the number of ConnectOAuth calls
func (c *FakeConnector) OAuthCalls() int {
	return int(atomic.LoadInt32(&c.oauthCalls))
}

type bundleRequest struct {
	account  string
	onResult func(*types.OAuthBundle, error)
}

// FakeCredentialStore keeps accounts in memory. OAuth bundle requests are
// answered asynchronously with Bundle/BundleErr, or held until Deliver when
// Manual is set.
type FakeCredentialStore struct {
	mu        sync.Mutex
	accounts  map[string]*types.Account
	passwords map[string]string
	requests  []bundleRequest
	requested map[string]int

	Bundle    *types.OAuthBundle
	BundleErr error
	Manual    bool
}

// NewFakeCredentialStore creates an empty store
func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{
		accounts:  make(map[string]*types.Account),
		passwords: make(map[string]string),
		requested: make(map[string]int),
	}
}

// AddAccount registers an account with its password (ignored for cloud accounts)
func (s *FakeCredentialStore) AddAccount(account *types.Account, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Name] = account
	s.passwords[account.Name] = password
}

func (s *FakeCredentialStore) Account(name string) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[name]; ok {
		return a, nil
	}
	return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound, "account not found").
		WithContext("account", name).Build())
}

func (s *FakeCredentialStore) ListAccounts(kinds ...types.AccountKind) ([]*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if len(kinds) == 0 || containsKind(kinds, a.Kind) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FakeCredentialStore) Password(account *types.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwords[account.Name], nil
}

func (s *FakeCredentialStore) RequestOAuthBundle(ctx context.Context, account *types.Account, onResult func(*types.OAuthBundle, error)) {
	s.mu.Lock()
	s.requested[account.Name]++
	if s.Manual {
		s.requests = append(s.requests, bundleRequest{account: account.Name, onResult: onResult})
		s.mu.Unlock()
		return
	}
	bundle, err := s.Bundle, s.BundleErr
	s.mu.Unlock()
	go onResult(bundle, err)
}

// Deliver answers every held request for account and returns how many there were
func (s *FakeCredentialStore) Deliver(account string, bundle *types.OAuthBundle, err error) int {
	s.mu.Lock()
	var held, rest []bundleRequest
	for _, r := range s.requests {
		if r.account == account {
			held = append(held, r)
		} else {
			rest = append(rest, r)
		}
	}
	s.requests = rest
	s.mu.Unlock()

	for _, r := range held {
		r.onResult(bundle, err)
	}
	return len(held)
}

// OAuthRequests returns how many bundle requests were made for account
func (s *FakeCredentialStore) OAuthRequests(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested[account]
}

func containsKind(kinds []types.AccountKind, k types.AccountKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
