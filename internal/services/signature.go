package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSignatureMissing  = errors.New("signature headers missing")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrSignatureStale    = errors.New("signature timestamp outside allowed window")
)

// SignatureVerifier authenticates gateway notifications with a shared-secret
// HMAC-SHA256 over "id:{data_id};request-id:{request_id};ts:{ts}".
type SignatureVerifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewSignatureVerifier(secret string, maxAge time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// ParseSignatureHeader splits "ts=<ts>,v1=<hex>" into its parts.
func ParseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

// Manifest builds the signed string.
func Manifest(dataID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s", dataID, requestID, ts)
}

// Sign returns the hex HMAC of the manifest.
func (v *SignatureVerifier) Sign(dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(Manifest(dataID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Check returns nil for an authentic, fresh notification and one of the
// ErrSignature* errors otherwise.
func (v *SignatureVerifier) Check(dataID, requestID, signatureHeader string) error {
	ts, received := ParseSignatureHeader(signatureHeader)
	if dataID == "" || requestID == "" || ts == "" || received == "" || len(v.secret) == 0 {
		return ErrSignatureMissing
	}

	expected := v.Sign(dataID, requestID, ts)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(received))) {
		return ErrSignatureMismatch
	}

	if !v.fresh(ts) {
		return ErrSignatureStale
	}
	return nil
}

// Valid is Check reduced to a boolean.
func (v *SignatureVerifier) Valid(dataID, requestID, signatureHeader string) bool {
	return v.Check(dataID, requestID, signatureHeader) == nil
}

// fresh accepts ts in seconds or milliseconds; anything above 1e12 is taken
// as milliseconds.
func (v *SignatureVerifier) fresh(ts string) bool {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || n <= 0 {
		return false
	}
	var at time.Time
	if n > 1e12 {
		at = time.UnixMilli(n)
	} else {
		at = time.Unix(n, 0)
	}

	age := v.now().Sub(at)
	if age < 0 {
		age = -age
	}
	return age <= v.maxAge
}
