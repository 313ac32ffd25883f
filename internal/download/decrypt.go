package download

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// encryptedHeadSize is how many leading bytes of a large image payload are
// ciphered; the remainder is plaintext.
const encryptedHeadSize = 20496

// deobfuscateImage undoes the scrambling applied to paid-content images.
// The AES-256-CBC parameters ride along in the cpx query parameter of the
// image URL; payloads without one, or that already decode as an image, are
// returned untouched.
func deobfuscateImage(data []byte, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse image url: %w", err)
	}
	cpx := rawQueryParam(parsed.RawQuery, "cpx")
	if cpx == "" {
		return data, nil
	}
	return decryptCpx(data, cpx)
}

// decryptCpx decodes one obfuscated payload. The layout is a one-byte
// flag, a big-endian ciphertext length, the ciphertext, and the trailing
// 32-byte key. The IV lives in the base64-decoded cpx value at [60:76].
// Payloads under encryptedHeadSize are ciphered whole; larger ones cipher
// only the head and carry the tail in plaintext.
func decryptCpx(data []byte, cpx string) ([]byte, error) {
	if looksLikeImage(data) {
		return data, nil
	}
	if len(data) < 5 {
		return nil, errors.New("image payload too short")
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("unexpected image payload flag %d", data[0])
	}
	size := int(binary.BigEndian.Uint32(data[1:5]))
	if 5+size > len(data) {
		// Truncated payload, nothing sensible to decrypt.
		return data, nil
	}

	cpxBytes, err := base64.StdEncoding.DecodeString(cpx)
	if err != nil {
		return nil, fmt.Errorf("decode cpx: %w", err)
	}
	if len(cpxBytes) < 76 {
		return nil, fmt.Errorf("cpx too short: %d bytes", len(cpxBytes))
	}
	iv := cpxBytes[60:76]
	key := data[5+size:]
	content := data[5 : 5+size]

	if len(content) < encryptedHeadSize {
		return aesCBCDecrypt(content, key, iv)
	}
	head, err := aesCBCDecrypt(content[:encryptedHeadSize], key, iv)
	if err != nil {
		return nil, err
	}
	return append(head, content[encryptedHeadSize:]...), nil
}

func aesCBCDecrypt(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("image cipher: %w", err)
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a whole number of blocks", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return stripPKCS7(out, block.BlockSize())
}

func stripPKCS7(data []byte, blockSize int) ([]byte, error) {
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid block padding")
		}
	}
	return data[:len(data)-pad], nil
}

// looksLikeImage reports whether data already decodes as a registered
// image format (jpeg, png, or webp).
func looksLikeImage(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

// rawQueryParam extracts a query parameter with percent-decoding only.
// url.Values would also turn '+' into a space, corrupting base64 values.
func rawQueryParam(rawQuery, name string) string {
	for _, kv := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(kv, "=")
		if k != name {
			continue
		}
		decoded, err := url.PathUnescape(v)
		if err != nil {
			return v
		}
		return decoded
	}
	return ""
}
