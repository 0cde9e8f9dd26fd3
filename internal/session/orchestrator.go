// Package session owns one repository session per account. Direct accounts
// connect with a stored password; cloud accounts first obtain an OAuth
// bundle from the credential store, parking the listings that asked for the
// session until the bundle arrives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/metrics"
	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// State is the per-account session state
type State int

const (
	StateNoSession State = iota
	StateAwaitingCredential
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateAwaitingCredential:
		return "awaiting-credential"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ErrAwaitingCredential is returned by Connect when the caller's listing was
// parked until an OAuth bundle is delivered
var ErrAwaitingCredential = errors.New("awaiting OAuth credential")

// CredentialStore is the account registry as seen by the orchestrator
type CredentialStore interface {
	Account(name string) (*types.Account, error)
	Password(account *types.Account) (string, error)
	// RequestOAuthBundle delivers a bundle or an error to onResult, usually
	// from another goroutine
	RequestOAuthBundle(ctx context.Context, account *types.Account, onResult func(*types.OAuthBundle, error))
}

// PendingListing is the continuation of a request parked behind a
// credential request. Sink receives nil when the bundle arrived and the
// request should run again, or the error that ended the credential request.
type PendingListing struct {
	URI        string
	ResourceID string
	Sink       func(err error)
}

type accountState struct {
	state   State
	repo    remote.Repository
	bundle  *types.OAuthBundle
	asking  bool
	waiting map[string]PendingListing
	lastErr error
}

// Orchestrator resolves accounts to live repository sessions
type Orchestrator struct {
	store     CredentialStore
	connector remote.Connector
	logger    logging.Logger

	mu       sync.Mutex
	accounts map[string]*accountState
	connects singleflight.Group
}

// NewOrchestrator creates an orchestrator with no sessions
func NewOrchestrator(store CredentialStore, connector remote.Connector, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Orchestrator{
		store:     store,
		connector: connector,
		logger:    logger,
		accounts:  make(map[string]*accountState),
	}
}

func (o *Orchestrator) stateFor(name string) *accountState {
	st, ok := o.accounts[name]
	if !ok {
		st = &accountState{waiting: make(map[string]PendingListing)}
		o.accounts[name] = st
	}
	return st
}

// Connect returns the account's session, connecting if needed. For a cloud
// account without an OAuth bundle it parks pending, requests a bundle once
// per account and returns ErrAwaitingCredential.
func (o *Orchestrator) Connect(ctx context.Context, name string, pending PendingListing) (remote.Repository, error) {
	o.mu.Lock()
	st := o.stateFor(name)
	if st.repo != nil {
		repo := st.repo
		o.mu.Unlock()
		return repo, nil
	}
	o.mu.Unlock()

	account, err := o.store.Account(name)
	if err != nil {
		return nil, utils.WrapAppError(utils.AsCLIError(utils.SessionUnavailable(name)), err)
	}

	if account.Kind == types.AccountKindCloud {
		o.mu.Lock()
		if st.bundle == nil {
			if pending.Sink != nil {
				st.waiting[pending.URI] = pending
			}
			ask := !st.asking
			st.asking = true
			st.state = StateAwaitingCredential
			o.mu.Unlock()

			if ask {
				o.logger.Info("Requesting OAuth bundle",
					logging.F("account", name),
					logging.F("requestUri", pending.URI),
				)
				o.store.RequestOAuthBundle(context.WithoutCancel(ctx), account, func(bundle *types.OAuthBundle, err error) {
					o.deliver(name, bundle, err)
				})
			}
			return nil, ErrAwaitingCredential
		}
		o.mu.Unlock()
	}

	v, err, _ := o.connects.Do(name, func() (interface{}, error) {
		return o.connect(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return v.(remote.Repository), nil
}

func (o *Orchestrator) connect(ctx context.Context, account *types.Account) (remote.Repository, error) {
	o.mu.Lock()
	st := o.stateFor(account.Name)
	if st.repo != nil {
		repo := st.repo
		o.mu.Unlock()
		return repo, nil
	}
	st.state = StateConnecting
	bundle := st.bundle
	o.mu.Unlock()

	o.logger.Debug("Connecting",
		logging.F("account", account.Name),
		logging.F("kind", account.Kind.String()),
	)

	var repo remote.Repository
	var err error
	switch account.Kind {
	case types.AccountKindCloud:
		repo, err = o.connector.ConnectOAuth(ctx, bundle)
	default:
		var password string
		password, err = o.store.Password(account)
		if err == nil {
			repo, err = o.connector.ConnectDirect(ctx, account.ServerURL, account.Username, password)
		}
	}
	metrics.RecordSessionConnect(account.Kind.String(), err)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		// a failed connect leaves no session; LastError keeps the cause
		st.state = StateNoSession
		st.lastErr = err
		if utils.IsCode(err, utils.ErrCodeAuthExpired) {
			st.bundle = nil
		}
		o.logger.Warn("Connect failed",
			logging.F("account", account.Name),
			logging.F("error", err.Error()),
		)
		return nil, err
	}
	st.state = StateReady
	st.repo = repo
	st.lastErr = nil
	o.logger.Info("Session ready", logging.F("account", account.Name))
	return repo, nil
}

// deliver stores the bundle and runs every parked continuation in URI order
func (o *Orchestrator) deliver(name string, bundle *types.OAuthBundle, err error) {
	o.mu.Lock()
	st := o.stateFor(name)
	st.asking = false
	if err == nil && bundle == nil {
		err = fmt.Errorf("credential store returned no bundle")
	}
	if err != nil {
		st.state = StateNoSession
		st.lastErr = err
		err = utils.WrapAppError(utils.AsCLIError(utils.SessionUnavailable(name)), err)
	} else {
		st.bundle = bundle
		st.state = StateNoSession
	}
	waiting := make([]PendingListing, 0, len(st.waiting))
	for _, p := range st.waiting {
		waiting = append(waiting, p)
	}
	st.waiting = make(map[string]PendingListing)
	o.mu.Unlock()

	sort.Slice(waiting, func(i, j int) bool { return waiting[i].URI < waiting[j].URI })

	if err != nil {
		o.logger.Warn("OAuth bundle request failed",
			logging.F("account", name),
			logging.F("waiting", len(waiting)),
			logging.F("error", err.Error()),
		)
	} else {
		o.logger.Info("OAuth bundle delivered",
			logging.F("account", name),
			logging.F("waiting", len(waiting)),
		)
	}
	for _, p := range waiting {
		p.Sink(err)
	}
}

// Await blocks until the account's session is ready, waiting through an
// OAuth bundle request if one is needed. It is meant for single-shot
// operations that report to their caller rather than through a listing.
func (o *Orchestrator) Await(ctx context.Context, name string) (remote.Repository, error) {
	done := make(chan error, 1)
	pending := PendingListing{
		URI:  "await:" + uuid.New().String(),
		Sink: func(err error) { done <- err },
	}

	for attempt := 0; attempt < 3; attempt++ {
		repo, err := o.Connect(ctx, name, pending)
		if err == nil {
			return repo, nil
		}
		if !errors.Is(err, ErrAwaitingCredential) {
			return nil, err
		}
		select {
		case err := <-done:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			o.forget(name, pending.URI)
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled,
				"waiting for session cancelled").WithContext("account", name).Build(), ctx.Err())
		}
	}
	return nil, utils.SessionUnavailable(name)
}

func (o *Orchestrator) forget(name, uri string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.stateFor(name).waiting, uri)
}

// Invalidate drops the account's session and OAuth bundle so the next
// Connect starts over
func (o *Orchestrator) Invalidate(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stateFor(name)
	st.repo = nil
	st.bundle = nil
	st.state = StateNoSession
	o.logger.Info("Session invalidated", logging.F("account", name))
}

// State reports the account's session state
func (o *Orchestrator) State(name string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.accounts[name]; ok {
		return st.state
	}
	return StateNoSession
}

// LastError returns the error of the account's last failed connect or
// credential request
func (o *Orchestrator) LastError(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.accounts[name]; ok {
		return st.lastErr
	}
	return nil
}

// Session returns the live session without connecting
func (o *Orchestrator) Session(name string) (remote.Repository, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.accounts[name]; ok && st.repo != nil {
		return st.repo, true
	}
	return nil, false
}

// Waiting returns the number of continuations parked for the account
func (o *Orchestrator) Waiting(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.accounts[name]; ok {
		return len(st.waiting)
	}
	return 0
}
