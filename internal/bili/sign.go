package bili

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
)

// App credentials of the TV client, which is the variant whose qrcode login
// flow the platform exposes.
const (
	appKey = "4409e2ce8ffd12b8"
	appSec = "59b43e04ad6965f34319062b478f83dd"
)

// signParams adds the appkey, timestamp and signature the app API requires.
// The signature is md5 over the key-sorted query string concatenated with
// the app secret; url.Values.Encode already sorts by key.
func signParams(params url.Values, ts int64) url.Values {
	params.Set("appkey", appKey)
	params.Set("ts", strconv.FormatInt(ts, 10))
	sum := md5.Sum([]byte(params.Encode() + appSec))
	params.Set("sign", hex.EncodeToString(sum[:]))
	return params
}
