// Package auth drives the two scan-to-login flows against the platform's
// qrcode endpoints.
//
// Both flows follow the same shape: a generate call issues a code and a QR
// image for the user to scan, then the caller polls until the session
// reaches a terminal state. The app (TV) flow can additionally be
// finalized from an existing web session via ConfirmAppCode.
//
// The Manager is purely reactive: it holds no timers and never polls on
// its own. Each session walks
//
//	pending-scan -> scanned -> confirmed
//
// with expired reachable from any state. Terminal sessions stay terminal;
// polling one returns ErrSessionExpired. A transient transport failure
// during a poll leaves the session untouched and is safe to retry.
package auth
