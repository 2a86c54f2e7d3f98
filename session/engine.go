package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/davparache/auditory-updated/internal/backoff"
	"github.com/davparache/auditory-updated/inventory"
)

// State is the engine's position in the connection lifecycle.
type State int

const (
	// Disconnected means no session is active.
	Disconnected State = iota

	// Connecting means Connect is probing the backend.
	Connecting

	// ConnectedAdmin means a session is live with write access.
	ConnectedAdmin

	// ConnectedReadOnly means a session is live without write access.
	ConnectedReadOnly

	// Failed means an established session broke and needs a reconnect.
	Failed
)

// String returns a short lowercase name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedAdmin:
		return "connected"
	case ConnectedReadOnly:
		return "connected read-only"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the engine.
type Status struct {
	// State is the connection lifecycle position.
	State State

	// SessionID is the active session, empty when disconnected.
	SessionID string

	// ReadOnly reports whether the session lacks write access.
	ReadOnly bool

	// Syncing reports whether a push is in flight.
	Syncing bool

	// Err is the most recent connection or push error, nil when
	// everything is healthy.
	Err error
}

// Config holds configuration for the Engine.
type Config struct {
	// Dial opens the backend store. Called once per Connect, retried
	// on failure.
	// Required.
	Dial func(ctx context.Context) (Store, error)

	// OnSnapshot receives every remote inventory snapshot together
	// with the connection's write access at that moment. The map
	// replaces local state wholesale: last writer wins, no field
	// merge. Optional.
	OnSnapshot func(m inventory.Map, readOnly bool)

	// DialAttempts is how many times Dial runs before Connect gives up.
	// Default: 3
	DialAttempts int

	// DialBackoff is the fixed wait between dial attempts.
	// Default: 2s
	DialBackoff time.Duration

	// Logger receives engine events.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics counts engine activity. Optional.
	Metrics *Metrics
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.DialAttempts < 1 {
		c.DialAttempts = 3
	}
	if c.DialBackoff <= 0 {
		c.DialBackoff = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine reconciles the local inventory with one shared remote
// session. At most one session is live per engine; Connect tears the
// previous one down first. All methods are safe for concurrent use.
type Engine struct {
	cfg Config

	// pushMu serializes pushes so snapshots reach the backend in
	// issue order.
	pushMu sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	pin       string
	readOnly  bool
	lastErr   error
	pushing   int
	store     Store
	sub       Subscription

	// gen increments on every Connect and Disconnect. Goroutines and
	// late results from a previous session carry the old value and
	// are ignored.
	gen uint64

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New returns an Engine using cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Dial == nil {
		return nil, errors.New("session: config needs a dial function")
	}
	cfg.validate()
	return &Engine{cfg: cfg}, nil
}

// Connect joins the session, creating or claiming it as needed, and
// starts watching it. Any previous session is torn down first. The
// context governs only the handshake; the watch runs until Disconnect
// or a replacing Connect.
func (e *Engine) Connect(ctx context.Context, sessionID, pin string) error {
	id := strings.ToUpper(strings.TrimSpace(sessionID))
	if id == "" {
		return errors.New("session: session id is required")
	}

	e.cfg.Metrics.addConnect()
	e.teardown()

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.state = Connecting
	e.sessionID = id
	e.pin = pin
	e.readOnly = false
	e.lastErr = nil
	e.mu.Unlock()

	// 1. Open the backend, retrying transient failures.
	st, err := e.dial(ctx)
	if err != nil {
		return e.connectFailed(gen, id, fmt.Errorf("dial backend: %w", err))
	}

	// 2. Probe the document and settle write access.
	readOnly, err := e.establish(ctx, st, id, pin)
	if err != nil {
		return e.connectFailed(gen, id, err)
	}

	// 3. Start the watch on an engine-owned context so it outlives
	// the handshake deadline.
	watchCtx, cancel := context.WithCancel(context.Background())
	sub, err := st.Watch(watchCtx, id)
	if err != nil {
		cancel()
		return e.connectFailed(gen, id, fmt.Errorf("watch session: %w", err))
	}
	done := make(chan struct{})

	e.mu.Lock()
	if e.gen != gen {
		// A newer Connect or Disconnect won the race.
		e.mu.Unlock()
		cancel()
		_ = sub.Close()
		close(done)
		return errors.New("session: connect superseded")
	}
	e.store = st
	e.sub = sub
	e.readOnly = readOnly
	e.state = connectedState(readOnly)
	e.watchCancel = cancel
	e.watchDone = done
	e.mu.Unlock()

	go e.watchLoop(gen, id, sub, done)

	e.cfg.Logger.Info("session connected", "session", id, "read_only", readOnly)
	return nil
}

// dial opens the backend store with fixed-delay retry.
func (e *Engine) dial(ctx context.Context) (Store, error) {
	var st Store
	err := backoff.Retry(ctx, e.cfg.DialAttempts, e.cfg.DialBackoff, func() error {
		var derr error
		st, derr = e.cfg.Dial(ctx)
		return derr
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// establish probes the remote document and settles write access,
// creating or claiming the session along the way.
func (e *Engine) establish(ctx context.Context, st Store, id, pin string) (bool, error) {
	now := inventory.Timestamp(time.Now())

	// Two passes at most: a create or claim that loses its race falls
	// through to a plain re-read and compare.
	for attempt := 0; ; attempt++ {
		doc, err := st.Get(ctx, id)

		switch {
		case errors.Is(err, ErrNotFound):
			// 1. New session. Creating claims it, even with an empty pin.
			cerr := st.Create(ctx, Document{ID: id, AdminPin: pin, JSON: "{}", Updated: now})
			if cerr == nil {
				return false, nil
			}
			if errors.Is(cerr, ErrAlreadyExists) && attempt == 0 {
				continue
			}
			return false, cerr

		case errors.Is(err, ErrPermissionDenied):
			// 2. Reads denied. A blind touch of the timestamp keeps
			// set-only deployments usable; access stays read-only
			// until the watch proves otherwise.
			if terr := st.Touch(ctx, id, now); terr != nil {
				return false, err
			}
			e.cfg.Logger.Warn("session probe denied, touched blind", "session", id)
			return true, nil

		case err != nil:
			return false, err
		}

		// 3. Existing session.
		if !doc.Claimed() {
			if pin == "" {
				return false, nil
			}
			cerr := st.Claim(ctx, id, pin, now)
			if cerr == nil {
				return false, nil
			}
			if errors.Is(cerr, ErrAlreadyClaimed) && attempt == 0 {
				continue
			}
			return false, cerr
		}
		return doc.AdminPin != pin, nil
	}
}

// connectFailed records err against gen and returns it.
func (e *Engine) connectFailed(gen uint64, id string, err error) error {
	e.cfg.Metrics.addConnectFailure()
	e.mu.Lock()
	if e.gen == gen {
		e.state = Disconnected
		e.lastErr = err
	}
	e.mu.Unlock()
	e.cfg.Logger.Error("session connect failed", "session", id, "error", err)
	return err
}

// watchLoop feeds remote snapshots into the engine until the
// subscription ends.
func (e *Engine) watchLoop(gen uint64, id string, sub Subscription, done chan struct{}) {
	defer close(done)

	for doc := range sub.Documents() {
		e.applySnapshot(gen, doc)
	}

	err := sub.Err()
	if err == nil {
		// Clean close from Disconnect or a replacing Connect.
		return
	}

	e.cfg.Metrics.addWatchFailure()
	e.mu.Lock()
	if e.gen == gen {
		e.state = Failed
		e.lastErr = err
	}
	e.mu.Unlock()
	e.cfg.Logger.Error("session watch failed", "session", id, "error", err)
}

// applySnapshot decodes one remote document and hands it to the
// snapshot callback. A payload that fails to parse counts as an empty
// inventory and forces the snapshot read-only.
func (e *Engine) applySnapshot(gen uint64, doc Document) {
	m, err := inventory.Decode([]byte(doc.JSON))
	corrupt := err != nil
	if corrupt {
		m = inventory.Map{}
		e.cfg.Metrics.addSnapshotCorrupt()
		e.cfg.Logger.Warn("session snapshot unreadable, treating as empty",
			"session", doc.ID, "error", err)
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	readOnly := corrupt || (doc.Claimed() && doc.AdminPin != e.pin)
	e.readOnly = readOnly
	if e.state == ConnectedAdmin || e.state == ConnectedReadOnly {
		e.state = connectedState(readOnly)
	}
	e.mu.Unlock()

	e.cfg.Metrics.addSnapshotApplied()
	if e.cfg.OnSnapshot != nil {
		e.cfg.OnSnapshot(m, readOnly)
	}
}

// Push serializes m and writes it to the session. Only an admin
// connection may push. Pushes are applied in issue order.
func (e *Engine) Push(ctx context.Context, m inventory.Map) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	switch e.state {
	case ConnectedAdmin:
	case ConnectedReadOnly:
		e.mu.Unlock()
		return ErrReadOnly
	default:
		e.mu.Unlock()
		return ErrNotConnected
	}
	st := e.store
	id := e.sessionID
	pin := e.pin
	gen := e.gen
	e.pushing++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.pushing--
		e.mu.Unlock()
	}()

	e.cfg.Metrics.addPush()

	data, err := m.Encode()
	if err != nil {
		e.cfg.Metrics.addPushFailure()
		return err
	}
	now := inventory.Timestamp(time.Now())

	err = st.UpdateSnapshot(ctx, id, pin, string(data), now)
	if errors.Is(err, ErrNotFound) {
		// The document vanished underneath us; recreate it whole.
		err = st.Put(ctx, Document{ID: id, AdminPin: pin, JSON: string(data), Updated: now})
	}

	e.mu.Lock()
	if e.gen == gen {
		e.lastErr = err
	}
	e.mu.Unlock()

	if err != nil {
		e.cfg.Metrics.addPushFailure()
		e.cfg.Logger.Error("session push failed", "session", id, "error", err)
		return err
	}
	return nil
}

// Disconnect ends the current session, if any. It waits for the watch
// to stop and is safe to call more than once.
func (e *Engine) Disconnect() {
	gen := e.teardown()

	e.mu.Lock()
	if e.gen == gen {
		e.state = Disconnected
		e.sessionID = ""
		e.pin = ""
		e.readOnly = false
		e.lastErr = nil
	}
	e.mu.Unlock()
}

// teardown stops the current watch and waits for it to exit. It
// returns the generation it claimed.
func (e *Engine) teardown() uint64 {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	sub := e.sub
	cancel := e.watchCancel
	done := e.watchDone
	e.store = nil
	e.sub = nil
	e.watchCancel = nil
	e.watchDone = nil
	e.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return gen
}

// Status returns a point-in-time view of the connection.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:     e.state,
		SessionID: e.sessionID,
		ReadOnly:  e.readOnly,
		Syncing:   e.pushing > 0,
		Err:       e.lastErr,
	}
}

// ReadOnly reports whether the current session lacks write access. It
// is false when no session is live, so offline work stays possible.
func (e *Engine) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// connectedState maps write access onto the matching live state.
func connectedState(readOnly bool) State {
	if readOnly {
		return ConnectedReadOnly
	}
	return ConnectedAdmin
}
