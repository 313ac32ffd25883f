package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/bili/dto"
	"github.com/rinshan/bilimanga-downloader/internal/http"
)

// GenerateAppQrcode requests a new app-flow (TV) login code. The returned
// URL is what the QR image must encode; AuthCode is what gets polled.
func (c *Client) GenerateAppQrcode(ctx context.Context) (*dto.JSONAppQrcode, error) {
	form := signParams(url.Values{"local_id": {"0"}}, time.Now().Unix())
	body, err := c.http.PostForm(ctx, c.PassportBase+"/x/passport-tv-login/qrcode/auth_code", form)
	if err != nil {
		return nil, fmt.Errorf("generate app qrcode: %w", err)
	}

	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var qr dto.JSONAppQrcode
	if err := json.Unmarshal(data, &qr); err != nil {
		return nil, fmt.Errorf("decode app qrcode: %w", err)
	}
	return &qr, nil
}

// PollAppQrcode polls an app-flow login code once. The returned code is
// the raw envelope code (0 confirmed, 86038 expired, 86090 scanned,
// 86101 not scanned); it is the caller's job to interpret it, so a pending
// code is not an error here. The poll payload is non-nil only when the
// code is 0.
func (c *Client) PollAppQrcode(ctx context.Context, authCode string) (int, *dto.JSONAppPoll, error) {
	form := signParams(url.Values{"auth_code": {authCode}, "local_id": {"0"}}, time.Now().Unix())
	body, err := c.http.PostForm(ctx, c.PassportBase+"/x/passport-tv-login/qrcode/poll", form)
	if err != nil {
		return 0, nil, fmt.Errorf("poll app qrcode: %w", err)
	}

	var env dto.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, nil, fmt.Errorf("decode app poll envelope: %w", err)
	}
	if env.Code != dto.QrCodeConfirmed {
		return env.Code, nil, nil
	}

	var poll dto.JSONAppPoll
	if err := json.Unmarshal(env.Data, &poll); err != nil {
		return 0, nil, fmt.Errorf("decode app poll: %w", err)
	}
	return env.Code, &poll, nil
}

// ConfirmAppQrcode finalizes an app-flow login from an already
// authenticated web session: csrf and sessdata are that session's
// credentials.
func (c *Client) ConfirmAppQrcode(ctx context.Context, authCode, csrf, sessdata string) (*dto.JSONAppConfirm, error) {
	form := url.Values{"auth_code": {authCode}, "csrf": {csrf}, "scanning_type": {"3"}}
	body, err := c.http.PostForm(ctx, c.PassportBase+"/x/passport-tv-login/h5/qrcode/confirm", form,
		http.WithCookie("SESSDATA="+sessdata))
	if err != nil {
		return nil, fmt.Errorf("confirm app qrcode: %w", err)
	}

	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var confirm dto.JSONAppConfirm
	if len(data) > 0 {
		if err := json.Unmarshal(data, &confirm); err != nil {
			return nil, fmt.Errorf("decode app confirm: %w", err)
		}
	}
	return &confirm, nil
}

// GenerateWebQrcode requests a new web-flow login code.
func (c *Client) GenerateWebQrcode(ctx context.Context) (*dto.JSONWebQrcode, error) {
	body, err := c.http.Get(ctx, c.PassportBase+"/x/passport-login/web/qrcode/generate")
	if err != nil {
		return nil, fmt.Errorf("generate web qrcode: %w", err)
	}

	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var qr dto.JSONWebQrcode
	if err := json.Unmarshal(data, &qr); err != nil {
		return nil, fmt.Errorf("decode web qrcode: %w", err)
	}
	return &qr, nil
}

// PollWebQrcode polls a web-flow login code once. The envelope code is 0
// for every outcome in this flow; the session state travels in the
// returned payload's Code/Message pair.
func (c *Client) PollWebQrcode(ctx context.Context, qrcodeKey string) (*dto.JSONWebPoll, error) {
	pollURL := c.PassportBase + "/x/passport-login/web/qrcode/poll?qrcode_key=" + url.QueryEscape(qrcodeKey)
	body, err := c.http.Get(ctx, pollURL)
	if err != nil {
		return nil, fmt.Errorf("poll web qrcode: %w", err)
	}

	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var poll dto.JSONWebPoll
	if err := json.Unmarshal(data, &poll); err != nil {
		return nil, fmt.Errorf("decode web poll: %w", err)
	}
	return &poll, nil
}
