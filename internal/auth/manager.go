package auth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/rinshan/bilimanga-downloader/internal/bili/dto"
)

// qrImageSize is the edge length in pixels of generated QR images.
const qrImageSize = 256

// API is the slice of the platform client the manager consumes.
// *bili.Client satisfies it; tests substitute a fake.
type API interface {
	GenerateAppQrcode(ctx context.Context) (*dto.JSONAppQrcode, error)
	PollAppQrcode(ctx context.Context, authCode string) (int, *dto.JSONAppPoll, error)
	ConfirmAppQrcode(ctx context.Context, authCode, csrf, sessdata string) (*dto.JSONAppConfirm, error)
	GenerateWebQrcode(ctx context.Context) (*dto.JSONWebQrcode, error)
	PollWebQrcode(ctx context.Context, qrcodeKey string) (*dto.JSONWebPoll, error)
}

// Manager owns the outstanding login sessions of both flows.
type Manager struct {
	api API

	mu       sync.Mutex
	sessions map[string]*Session // keyed by code
}

// NewManager creates a Manager over the given API.
func NewManager(api API) *Manager {
	return &Manager{
		api:      api,
		sessions: make(map[string]*Session),
	}
}

// GenerateAppCode issues a new app-flow login code and renders its QR
// image. The new session starts in StatePendingScan; earlier sessions are
// left alone (superseded, not mutated).
func (m *Manager) GenerateAppCode(ctx context.Context) (*GeneratedCode, error) {
	qr, err := m.api.GenerateAppQrcode(ctx)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(qr.URL, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qrcode: %w", err)
	}

	m.track(qr.AuthCode)
	return &GeneratedCode{Image: png, Code: qr.AuthCode}, nil
}

// PollAppStatus polls an app-flow session once and maps the upstream code
// onto the session state machine. Transport failures are returned as-is
// and leave the session untouched; polling a terminal session returns
// ErrSessionExpired.
func (m *Manager) PollAppStatus(ctx context.Context, authCode string) (*AppStatus, error) {
	if err := m.checkPollable(authCode); err != nil {
		return nil, err
	}

	code, poll, err := m.api.PollAppQrcode(ctx, authCode)
	if err != nil {
		return nil, err
	}

	switch code {
	case dto.QrCodeConfirmed:
		m.transition(authCode, StateConfirmed)
		return &AppStatus{
			State: StateConfirmed,
			Token: &TokenBundle{
				UID:          poll.Mid,
				AccessToken:  poll.AccessToken,
				RefreshToken: poll.RefreshToken,
				Cookie:       poll.Cookie(),
			},
		}, nil
	case dto.QrCodeScanned:
		m.transition(authCode, StateScanned)
		return &AppStatus{State: StateScanned}, nil
	case dto.QrCodeNotScanned:
		return &AppStatus{State: StatePendingScan}, nil
	default:
		// Expired, or an unexpected upstream code. Terminal either way.
		m.transition(authCode, StateExpired)
		return &AppStatus{State: StateExpired}, nil
	}
}

// ConfirmAppCode finalizes an app-flow session that reached StateScanned,
// using the csrf token and SESSDATA of an already authenticated web
// session. Confirming a terminal session fails with ErrSessionExpired
// without touching the upstream.
func (m *Manager) ConfirmAppCode(ctx context.Context, authCode, csrf, sessdata string) error {
	if err := m.checkPollable(authCode); err != nil {
		return err
	}

	if _, err := m.api.ConfirmAppQrcode(ctx, authCode, csrf, sessdata); err != nil {
		return err
	}
	// The confirm endpoint does not return tokens; the next poll observes
	// the confirmed state and collects them.
	return nil
}

// GenerateWebCode issues a new web-flow login code and renders its QR
// image.
func (m *Manager) GenerateWebCode(ctx context.Context) (*GeneratedCode, error) {
	qr, err := m.api.GenerateWebQrcode(ctx)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(qr.URL, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qrcode: %w", err)
	}

	m.track(qr.QrcodeKey)
	return &GeneratedCode{Image: png, Code: qr.QrcodeKey}, nil
}

// PollWebStatus polls a web-flow session once. The upstream carries the
// session state in the payload's inner code: 86101 and 86090 are still
// pending, 0 is confirmed, everything else is terminal.
func (m *Manager) PollWebStatus(ctx context.Context, qrcodeKey string) (*WebStatus, error) {
	if err := m.checkPollable(qrcodeKey); err != nil {
		return nil, err
	}

	poll, err := m.api.PollWebQrcode(ctx, qrcodeKey)
	if err != nil {
		return nil, err
	}

	status := &WebStatus{Code: poll.Code, Message: poll.Message}
	switch poll.Code {
	case dto.QrCodeConfirmed:
		m.transition(qrcodeKey, StateConfirmed)
		status.State = StateConfirmed
		status.Token = &TokenBundle{
			RefreshToken: poll.RefreshToken,
			Cookie:       cookieFromCrossDomainURL(poll.URL),
		}
	case dto.QrCodeNotScanned:
		status.State = StatePendingScan
	case dto.QrCodeScanned:
		m.transition(qrcodeKey, StateScanned)
		status.State = StateScanned
	default:
		m.transition(qrcodeKey, StateExpired)
		status.State = StateExpired
	}
	return status, nil
}

// SessionState reports the tracked state of a code, mainly for observers.
func (m *Manager) SessionState(code string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return 0, false
	}
	return sess.State, true
}

func (m *Manager) track(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[code] = &Session{
		ID:       uuid.New(),
		Code:     code,
		IssuedAt: time.Now(),
		State:    StatePendingScan,
	}
}

func (m *Manager) checkPollable(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return ErrUnknownSession
	}
	if sess.State.IsTerminal() {
		return fmt.Errorf("session %s: %w", sess.ID, ErrSessionExpired)
	}
	return nil
}

func (m *Manager) transition(code string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[code]; ok && !sess.State.IsTerminal() {
		sess.State = state
	}
}

// cookieFromCrossDomainURL extracts the session cookies the web flow
// delivers as query parameters of its cross-domain redirect URL.
func cookieFromCrossDomainURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	cookie := ""
	for _, name := range []string{"DedeUserID", "DedeUserID__ckMd5", "SESSDATA", "bili_jct"} {
		if v := parsed.Query().Get(name); v != "" {
			if cookie != "" {
				cookie += "; "
			}
			cookie += name + "=" + v
		}
	}
	return cookie
}
