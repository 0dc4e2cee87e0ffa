package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmsavelyev/chatvault/internal/audit"
	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging"
	"github.com/dmsavelyev/chatvault/internal/session/registry"
)

// state is the in-memory, process-lifetime side of one identity: the live
// client handle, a mirror of the persisted status, and the broadcast
// channel waiters block on. It is rebuilt from scratch whenever the
// identity is (re)started.
type state struct {
	id     string
	client messaging.Client
	cancel context.CancelFunc

	mu      sync.Mutex
	status  Status
	qrImage string
	changed chan struct{}
}

// broadcast wakes every waiter by replacing the changed channel. Callers
// must hold s.mu.
func (s *state) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Manager owns all live sessions. Exactly one client instance exists per
// identity; EnsureStarted is single-flight against concurrent callers.
type Manager struct {
	repo       registry.Repository
	factory    messaging.Factory
	normalizer *audit.Normalizer
	credsDir   string
	logger     logging.Logger

	mu       sync.Mutex
	sessions map[string]*state
}

func NewManager(repo registry.Repository, factory messaging.Factory, normalizer *audit.Normalizer, credsDir string, logger logging.Logger) *Manager {
	return &Manager{
		repo:       repo,
		factory:    factory,
		normalizer: normalizer,
		credsDir:   credsDir,
		logger:     logger.With("module", "session_manager"),
		sessions:   make(map[string]*state),
	}
}

func statusPatch(st Status) registry.Patch {
	s := string(st)
	return registry.Patch{Status: &s}
}

// EnsureStarted is idempotent: if the identity already has a live session
// it is returned unchanged; otherwise the persisted record is created or
// resumed, a fresh client is constructed and connection bring-up begins
// asynchronously. The map lock makes concurrent calls for the same
// identity single-flight; only one client instance is ever created.
func (m *Manager) EnsureStarted(ctx context.Context, id, name string) (*registry.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return m.repo.Get(ctx, id)
	}

	patch := registry.Patch{}
	if name != "" {
		patch.Name = &name
	}
	rec, err := m.repo.Upsert(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	// a brand-new identity starts initializing; a known one resumes its
	// last recorded status
	if rec.Status == string(StatusNew) {
		rec, err = m.repo.Upsert(ctx, id, statusPatch(StatusInitializing))
		if err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &state{
		id:      id,
		client:  m.factory(id, m.credsDir),
		cancel:  cancel,
		status:  Status(rec.Status),
		changed: make(chan struct{}),
	}
	m.sessions[id] = s

	go m.run(runCtx, s)
	go func() {
		if err := s.client.Initialize(runCtx); err != nil {
			m.logger.Error(runCtx, "initialize failed", "identity", id, "err", err.Error())
			m.transition(runCtx, s, StatusError, func(p *registry.Patch) {
				msg := err.Error()
				p.LastError = &msg
			})
		}
	}()

	return rec, nil
}

// run consumes the identity's event stream until the session is stopped
// or the client closes the channel.
func (m *Manager) run(ctx context.Context, s *state) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				return
			}
			m.dispatch(ctx, s, ev)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, s *state, ev messaging.Event) {
	switch e := ev.(type) {
	case messaging.QREvent:
		image, err := RenderQR(e.Code)
		if err != nil {
			m.logger.Error(ctx, "qr render failed", "identity", s.id, "err", err.Error())
			m.transition(ctx, s, StatusQRError, func(p *registry.Patch) {
				msg := err.Error()
				p.LastError = &msg
			})
			return
		}
		now := time.Now().UTC()
		s.mu.Lock()
		s.qrImage = image
		s.mu.Unlock()
		m.logger.Info(ctx, "qr generated", "identity", s.id)
		m.transition(ctx, s, StatusQR, func(p *registry.Patch) {
			p.LastQrAt = &now
			p.LastQrImage = &image
		})

	case messaging.AuthenticatedEvent:
		m.logger.Info(ctx, "authenticated", "identity", s.id)
		m.transition(ctx, s, StatusAuthenticated, dropQR(s))

	case messaging.ReadyEvent:
		m.logger.Info(ctx, "connected", "identity", s.id)
		m.transition(ctx, s, StatusConnected, dropQR(s))

	case messaging.AuthFailureEvent:
		m.logger.Warn(ctx, "auth failure", "identity", s.id, "reason", e.Reason)
		m.transition(ctx, s, StatusAuthFailure, func(p *registry.Patch) {
			p.LastError = &e.Reason
		})

	case messaging.DisconnectedEvent:
		m.logger.Warn(ctx, "disconnected", "identity", s.id, "reason", e.Reason)
		m.transition(ctx, s, StatusDisconnected, func(p *registry.Patch) {
			p.LastError = &e.Reason
		})

	case messaging.MessageEvent:
		// capture failures must never take the event loop down
		if err := m.normalizer.HandleMessage(ctx, s.id, s.client, e); err != nil {
			m.logger.Error(ctx, "capture failed", "identity", s.id, "direction", string(e.Direction), "err", err.Error())
		}
	}
}

// dropQR invalidates the pairing image once authentication has happened.
// The stale challenge must not be served after the identity is connected;
// LastQrAt stays as history.
func dropQR(s *state) func(*registry.Patch) {
	s.mu.Lock()
	s.qrImage = ""
	s.mu.Unlock()
	empty := ""
	return func(p *registry.Patch) {
		p.LastQrImage = &empty
	}
}

// transition applies a lifecycle change: update the in-memory mirror,
// persist the same fields, then wake all waiters.
func (m *Manager) transition(ctx context.Context, s *state, st Status, extra func(*registry.Patch)) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	patch := statusPatch(st)
	if extra != nil {
		extra(&patch)
	}
	if _, err := m.repo.Upsert(ctx, s.id, patch); err != nil {
		m.logger.Error(ctx, "persist transition failed", "identity", s.id, "status", string(st), "err", err.Error())
	}

	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
}

func evaluate(st Status, qrImage string) (Outcome, bool) {
	switch {
	case st == StatusQR && qrImage != "":
		return OutcomeQR, true
	case st == StatusConnected || st == StatusAuthenticated:
		return OutcomeConnected, true
	case st == StatusAuthFailure || st == StatusError || st == StatusQRError:
		return OutcomeError, true
	}
	return "", false
}

// AwaitOutcome blocks the calling goroutine until the identity reaches a
// meaningful state (QR available, connected, or an error state) or the
// timeout elapses. The current status is evaluated immediately, so a call
// made after the fact resolves at once. The waiter is deregistered by
// construction: it only ever holds a reference to one broadcast channel.
func (m *Manager) AwaitOutcome(ctx context.Context, id string, timeout time.Duration) (Outcome, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		s := m.sessions[id]
		m.mu.Unlock()

		if s == nil {
			// the session was never started or has been stopped: evaluate
			// the durable record once, then wait out the budget
			rec, err := m.repo.Get(ctx, id)
			if err != nil {
				return "", err
			}
			if o, ok := evaluate(Status(rec.Status), ""); ok && o != OutcomeQR {
				return o, nil
			}
			select {
			case <-ctx.Done():
				return OutcomeTimeout, ctx.Err()
			case <-deadline.C:
				return OutcomeTimeout, nil
			}
		}

		s.mu.Lock()
		st := s.status
		qrImage := s.qrImage
		changed := s.changed
		s.mu.Unlock()

		if o, ok := evaluate(st, qrImage); ok {
			return o, nil
		}

		select {
		case <-ctx.Done():
			return OutcomeTimeout, ctx.Err()
		case <-deadline.C:
			return OutcomeTimeout, nil
		case <-changed:
			// re-evaluate; also handles the session being stopped
		}
	}
}

// Status returns the persisted record for one identity, without QR image.
func (m *Manager) Status(ctx context.Context, id string) (*registry.Record, error) {
	return m.repo.Get(ctx, id)
}

// List returns all persisted records, without QR images.
func (m *Manager) List(ctx context.Context) ([]*registry.Record, error) {
	return m.repo.List(ctx)
}

// QR returns the persisted record including the last rendered QR image.
func (m *Manager) QR(ctx context.Context, id string) (*registry.Record, error) {
	return m.repo.GetQR(ctx, id)
}

// Stop tears down the live client and removes the in-memory state. The
// persisted record and on-disk credentials are untouched. Pending waiters
// are woken so they re-evaluate instead of hanging.
func (m *Manager) Stop(ctx context.Context, id string) bool {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s == nil {
		return false
	}

	s.cancel()
	if err := s.client.Destroy(ctx); err != nil {
		m.logger.Warn(ctx, "client destroy failed", "identity", id, "err", err.Error())
	}

	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
	return true
}

// Remove stops the session, deletes its durable credentials and removes
// its registry record.
func (m *Manager) Remove(ctx context.Context, id string) (bool, messaging.CredentialCleanup, error) {
	existed := m.Stop(ctx, id)
	cleanup := messaging.ClearCredentials(m.credsDir, id)

	err := m.repo.Delete(ctx, id)
	return existed, cleanup, err
}

// RemovalResult describes the teardown of one identity during Clear.
type RemovalResult struct {
	ID           string                      `json:"id"`
	Disconnected bool                        `json:"disconnected"`
	Session      messaging.CredentialCleanup `json:"session"`
}

// Clear removes every identity: stops each live session, clears its
// credentials, then wipes the registry.
func (m *Manager) Clear(ctx context.Context) ([]RemovalResult, error) {
	recs, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RemovalResult, 0, len(recs))
	for _, rec := range recs {
		existed := m.Stop(ctx, rec.ID)
		cleanup := messaging.ClearCredentials(m.credsDir, rec.ID)
		results = append(results, RemovalResult{ID: rec.ID, Disconnected: existed, Session: cleanup})
	}

	if err := m.repo.Clear(ctx); err != nil {
		return results, err
	}
	return results, nil
}

// StopAll tears down every live session; used on shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(ctx, id)
	}
}
