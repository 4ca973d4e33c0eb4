package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/localstore"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
)

// SessionKey is where the signed-in session is kept in the local store.
const SessionKey = "mvp-hunter-session"

// Gate is either Authenticated or Unauthenticated.
type Gate interface {
	gate()
}

type Authenticated struct {
	Session *Session
}

type Unauthenticated struct{}

func (Authenticated) gate()   {}
func (Unauthenticated) gate() {}

// Require returns the session behind a gate, or ErrLoginRequired.
func Require(g Gate) (*Session, error) {
	if a, ok := g.(Authenticated); ok && a.Session != nil {
		return a.Session, nil
	}
	return nil, &ErrLoginRequired{}
}

// SessionSource provides the session operations needed to retry a request
// after an auth failure.
type SessionSource interface {
	GetSession(ctx context.Context) (*Session, error)
	RefreshSession(ctx context.Context) (*Session, error)
}

var _ SessionSource = &SessionManager{}

// SessionManager owns the current session. It is read once from the local
// store and then kept in memory; listeners hear about every change.
type SessionManager struct {
	auth  *AuthClient
	store localstore.KV

	mu        sync.Mutex
	loaded    bool
	session   *Session
	listeners map[int]func(*Session)
	nextID    int
}

type NewSessionManagerOptions struct {
	Auth *AuthClient
	// Store persists the session. Nil keeps it in memory only.
	Store localstore.KV
}

func NewSessionManager(opts NewSessionManagerOptions) *SessionManager {
	return &SessionManager{
		auth:      opts.Auth,
		store:     opts.Store,
		listeners: make(map[int]func(*Session)),
	}
}

// GetSession returns the current session, nil when signed out.
func (m *SessionManager) GetSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m.session, nil
}

func (m *SessionManager) Gate(ctx context.Context) (Gate, error) {
	session, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return Unauthenticated{}, nil
	}
	return Authenticated{Session: session}, nil
}

// Token returns the ID token of the current session.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	session, err := m.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", &ErrLoginRequired{}
	}
	return session.IDToken, nil
}

func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.set(ctx, session); err != nil {
		return nil, err
	}
	log.Info("Signed in as %s", session.Email)
	return session, nil
}

func (m *SessionManager) SignUp(ctx context.Context, email, password string) (*Session, error) {
	session, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.set(ctx, session); err != nil {
		return nil, err
	}
	log.Info("Registered as %s", session.Email)
	return session, nil
}

// RefreshSession replaces the current session with a refreshed one. The
// current session is kept when the refresh fails.
func (m *SessionManager) RefreshSession(ctx context.Context) (*Session, error) {
	current, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &ErrLoginRequired{}
	}
	session, err := m.auth.Refresh(ctx, current)
	if err != nil {
		return nil, err
	}
	if err := m.set(ctx, session); err != nil {
		return nil, err
	}
	log.Debug("Refreshed session of %s", session.UserID)
	return session, nil
}

func (m *SessionManager) SignOut(ctx context.Context) error {
	return m.set(ctx, nil)
}

// DeleteAccount removes the account and signs out.
func (m *SessionManager) DeleteAccount(ctx context.Context) error {
	session, err := m.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return &ErrLoginRequired{}
	}
	if err := m.auth.DeleteAccount(ctx, session); err != nil {
		return err
	}
	return m.SignOut(ctx)
}

// OnAuthStateChange registers fn to be called with the new session, or nil
// on sign out. The returned function unregisters it.
func (m *SessionManager) OnAuthStateChange(fn func(*Session)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// load reads the persisted session on first use. Callers hold mu.
func (m *SessionManager) load(ctx context.Context) error {
	if m.loaded || m.store == nil {
		m.loaded = true
		return nil
	}
	value, ok, err := m.store.Get(ctx, SessionKey)
	if err != nil {
		return fmt.Errorf("failed to load session: %v", err)
	}
	m.loaded = true
	if !ok {
		return nil
	}
	session := &Session{}
	if err := json.Unmarshal([]byte(value), session); err != nil || session.IDToken == "" {
		log.Warn("Ignoring malformed saved session")
		return nil
	}
	m.session = session
	return nil
}

func (m *SessionManager) set(ctx context.Context, session *Session) error {
	m.mu.Lock()
	if m.store != nil {
		if session == nil {
			if err := m.store.Delete(ctx, SessionKey); err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to delete session: %v", err)
			}
		} else {
			b, err := json.Marshal(session)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to encode session: %v", err)
			}
			if err := m.store.Set(ctx, SessionKey, string(b)); err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to save session: %v", err)
			}
		}
	}
	m.loaded = true
	m.session = session
	listeners := make([]func(*Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
	return nil
}
