package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of one login session.
type State int

const (
	// StatePendingScan means the code has been issued but not scanned yet.
	StatePendingScan State = iota

	// StateScanned means the code was scanned on another device but the
	// login has not been confirmed there.
	StateScanned

	// StateConfirmed is terminal: credentials have been issued.
	StateConfirmed

	// StateExpired is terminal: the code timed out, was rejected, or the
	// upstream reported any other terminal failure.
	StateExpired
)

// IsTerminal reports whether no further transition can occur.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateExpired
}

func (s State) String() string {
	switch s {
	case StatePendingScan:
		return "pending-scan"
	case StateScanned:
		return "scanned"
	case StateConfirmed:
		return "confirmed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionExpired is returned when polling or confirming a session
	// that already reached a terminal state. It is not retriable.
	ErrSessionExpired = errors.New("login session expired")

	// ErrUnknownSession is returned for codes this manager never issued.
	ErrUnknownSession = errors.New("unknown login session")
)

// Session is one outstanding scan-to-login attempt. A new generate call
// creates a new Session; it never mutates or revives an old one.
type Session struct {
	ID       uuid.UUID
	Code     string // app auth code or web qrcode key
	IssuedAt time.Time
	State    State
}

// TokenBundle carries the credentials issued when a session confirms.
type TokenBundle struct {
	UID          int64
	AccessToken  string
	RefreshToken string
	Cookie       string
}

// AppStatus is the result of one app-flow poll.
type AppStatus struct {
	State State

	// Token is set only when State is StateConfirmed.
	Token *TokenBundle
}

// WebStatus is the result of one web-flow poll. The upstream protocol has
// no uniform terminal marker, so the raw code/message pair is carried
// alongside the mapped state.
type WebStatus struct {
	State   State
	Code    int
	Message string

	// Token is set only when State is StateConfirmed.
	Token *TokenBundle
}

// GeneratedCode is an issued login code plus its scannable rendering.
type GeneratedCode struct {
	// Image is the QR code as an encoded PNG.
	Image []byte

	// Code is what subsequent polls must pass back: the auth code for the
	// app flow, the qrcode key for the web flow.
	Code string
}
