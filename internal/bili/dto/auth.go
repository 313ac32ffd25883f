package dto

// Session-state codes shared by both qrcode login flows. The app flow
// carries them in the response envelope, the web flow in the poll payload.
const (
	QrCodeConfirmed  = 0
	QrCodeExpired    = 86038
	QrCodeScanned    = 86090
	QrCodeNotScanned = 86101
)

// JSONAppQrcode is the payload of the app-flow (TV) qrcode issuance
// endpoint. URL is what the QR image must encode; AuthCode is polled.
type JSONAppQrcode struct {
	URL      string `json:"url"`
	AuthCode string `json:"auth_code"`
}

// JSONCookie is one name/value pair from a cookie grant.
type JSONCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// JSONCookieInfo carries the cookies issued alongside an app token.
type JSONCookieInfo struct {
	Cookies []JSONCookie `json:"cookies"`
}

// JSONAppPoll is the payload of the app-flow poll endpoint once the code
// has been confirmed. Before confirmation the data field is empty and the
// envelope code carries the session state.
type JSONAppPoll struct {
	Mid          int64          `json:"mid"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int64          `json:"expires_in"`
	CookieInfo   JSONCookieInfo `json:"cookie_info"`
}

// Cookie flattens the issued cookies into a Cookie header value.
func (jp *JSONAppPoll) Cookie() string {
	cookie := ""
	for i, c := range jp.CookieInfo.Cookies {
		if i > 0 {
			cookie += "; "
		}
		cookie += c.Name + "=" + c.Value
	}
	return cookie
}

// JSONAppConfirm is the payload of the app-flow confirm endpoint.
type JSONAppConfirm struct {
	Gourl string `json:"gourl"`
}

// JSONWebQrcode is the payload of the web-flow qrcode issuance endpoint.
type JSONWebQrcode struct {
	URL       string `json:"url"`
	QrcodeKey string `json:"qrcode_key"`
}

// JSONWebPoll is the payload of the web-flow poll endpoint. Unlike the app
// flow, the envelope code is always 0 here; the session state lives in the
// inner Code/Message pair (0 confirmed, 86101 not scanned, 86090 scanned,
// 86038 expired).
type JSONWebPoll struct {
	URL          string `json:"url"`
	RefreshToken string `json:"refresh_token"`
	Timestamp    int64  `json:"timestamp"`
	Code         int    `json:"code"`
	Message      string `json:"message"`
}
