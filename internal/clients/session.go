package clients

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Channel is the bidirectional message connection of one client.
// WriteFrame and Ping are only called from the streaming goroutine,
// ReadMessage only from the reading goroutine.
type Channel interface {
	// ReadMessage blocks for the next inbound message.
	ReadMessage() ([]byte, error)
	WriteFrame(frame []byte) error
	Ping() error

	// Interrupt makes a blocked ReadMessage return promptly.
	Interrupt()

	// CloseWithReason sends a close frame, then closes.
	CloseWithReason(code int, reason string) error
	Close() error
	RemoteAddr() string
}

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one connected client. It is owned by the Manager goroutine
// that serves it.
type Session struct {
	ID          uuid.UUID
	Remote      string
	ConnectedAt time.Time

	ch     Channel
	state  atomic.Int32
	cancel context.CancelFunc

	mu           sync.Mutex
	lastActivity time.Time
}

func newSession(ch Channel, now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		Remote:       ch.RemoteAddr(),
		ConnectedAt:  now,
		ch:           ch,
		lastActivity: now,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Duration is how long the session has been connected at now.
func (s *Session) Duration(now time.Time) time.Duration { return now.Sub(s.ConnectedAt) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// LastActivity is the time of the last valid command, or of the connect.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}
