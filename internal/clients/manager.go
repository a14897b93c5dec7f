package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"couchcontrol/internal/clock"
	"couchcontrol/internal/types"
)

var (
	ErrTooManyClients = errors.New("too many clients")
	ErrShuttingDown   = errors.New("server shutting down")
)

// Controller applies decoded commands for one session. ctx is cancelled
// when the session ends.
type Controller interface {
	Handler(ctx context.Context) types.Handler
}

// Manager tracks the active sessions and the global activity clock.
type Manager struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*Session
	lastActivity time.Time
	shuttingDown bool

	maxClients int
	streamer   *Streamer
	control    Controller
	clock      clock.Clock
	log        zerolog.Logger
	serving    sync.WaitGroup
}

type ManagerConfig struct {
	// MaxClients caps concurrent sessions; zero or less means unlimited.
	MaxClients int
	Streamer   *Streamer
	Control    Controller
	Clock      clock.Clock
	Log        zerolog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		sessions:     make(map[uuid.UUID]*Session),
		lastActivity: clk.Now(),
		maxClients:   cfg.MaxClients,
		streamer:     cfg.Streamer,
		control:      cfg.Control,
		clock:        clk,
		log:          cfg.Log,
	}
}

// Serve runs one client until it disconnects or ctx is cancelled. It
// returns only after both session goroutines have finished and the
// session has been removed.
func (m *Manager) Serve(ctx context.Context, ch Channel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := m.admit(ch, cancel)
	if err != nil {
		code, reason := websocket.CloseTryAgainLater, ErrTooManyClients.Error()
		if errors.Is(err, ErrShuttingDown) {
			code, reason = websocket.CloseGoingAway, ErrShuttingDown.Error()
		}
		m.log.Warn().Str("remote", ch.RemoteAddr()).Err(err).Msg("rejecting client")
		_ = ch.CloseWithReason(code, reason)
		return err
	}
	defer m.serving.Done()

	log := m.log.With().Str("session", s.ID.String()).Str("remote", s.Remote).Logger()
	log.Info().Int("clients", m.Count()).Msg("client connected")

	m.run(ctx, s, log)
	m.remove(s)

	if m.isShuttingDown() {
		_ = ch.CloseWithReason(websocket.CloseGoingAway, ErrShuttingDown.Error())
	} else {
		_ = ch.Close()
	}
	log.Info().Int("clients", m.Count()).Dur("duration", s.Duration(m.clock.Now())).Msg("client disconnected")
	return nil
}

func (m *Manager) admit(ch Channel, cancel context.CancelFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return nil, ErrShuttingDown
	}
	if m.maxClients > 0 && len(m.sessions) >= m.maxClients {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyClients, m.maxClients)
	}
	now := m.clock.Now()
	s := newSession(ch, now)
	s.cancel = cancel
	s.setState(StateActive)
	m.sessions[s.ID] = s
	m.lastActivity = now
	m.serving.Add(1)
	return s, nil
}

// run starts the streamer and the reader and waits for both. Whichever
// ends first cancels the other.
func (m *Manager) run(ctx context.Context, s *Session, log zerolog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := m.streamer.Run(ctx, s.ch); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("stream ended")
		}
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		m.read(ctx, s, log)
	}()

	<-ctx.Done()
	s.setState(StateClosing)
	s.ch.Interrupt()
	wg.Wait()
}

func (m *Manager) read(ctx context.Context, s *Session, log zerolog.Logger) {
	h := m.control.Handler(ctx)
	for {
		raw, err := s.ch.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("read ended")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		cmd, err := types.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("dropping message")
			continue
		}
		now := m.clock.Now()
		s.touch(now)
		m.Touch(now)
		m.dispatch(cmd, h, log)
	}
}

func (m *Manager) dispatch(cmd types.Command, h types.Handler, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("panic: %v", r)).Msgf("command %T failed", cmd)
		}
	}()
	cmd.Dispatch(h)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()
	s.setState(StateClosed)
}

// Touch records global activity at now.
func (m *Manager) Touch(now time.Time) {
	m.mu.Lock()
	if now.After(m.lastActivity) {
		m.lastActivity = now
	}
	m.mu.Unlock()
}

// LastActivity is the last time a client connected, disconnected, sent a
// valid command or loaded the page.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of the active sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Idle reports whether there are no sessions and the last activity is
// more than timeout ago.
func (m *Manager) Idle(timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) == 0 && m.clock.Now().Sub(m.lastActivity) > timeout
}

func (m *Manager) isShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}

// Shutdown stops admitting clients, cancels every session and waits for
// them to be removed or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	for _, s := range m.sessions {
		s.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.serving.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
