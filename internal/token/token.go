// Package token encodes internal account identifiers into the opaque
// shareable tokens counterparties exchange outside the system. Encoding is
// reversible; decoding is strict because tokens are user-supplied input.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// ErrMalformedToken reports input that does not match the token shape.
// Callers must treat it as request validation, never as an internal fault.
var ErrMalformedToken = errors.New("malformed shareable token")

const checksumLen = 8 // crc32 as fixed-width hex

// Encode turns an account identifier into a shareable token:
// base64url(accountID) + "-" + crc32(payload) in hex.
func Encode(accountID string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(accountID))
	return payload + "-" + checksum(payload)
}

// Decode reverses Encode. Any token that fails shape, charset, or checksum
// validation is rejected with an ErrMalformedToken-wrapped error.
func Decode(tok string) (string, error) {
	sep := strings.LastIndexByte(tok, '-')
	if sep < 0 {
		return "", fmt.Errorf("%w: missing checksum separator", ErrMalformedToken)
	}
	payload, sum := tok[:sep], tok[sep+1:]
	if payload == "" {
		return "", fmt.Errorf("%w: empty payload", ErrMalformedToken)
	}
	if len(sum) != checksumLen {
		return "", fmt.Errorf("%w: checksum length %d", ErrMalformedToken, len(sum))
	}
	if sum != checksum(payload) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrMalformedToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty identifier", ErrMalformedToken)
	}
	return string(raw), nil
}

func checksum(payload string) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(payload)))
}
