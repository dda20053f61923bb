package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Password-reset tokens are HMAC-SHA256 signed values embedding the account email
// and an issue timestamp. They are independent of the session JWT: the signing key
// is derived from the server secret with a package-local salt, and the expiry
// window is Config.Server.PasswordResetTimeoutDelta.

var (
	salt    = []byte("gradebook.core.user.token_gen")
	nowFunc = time.Now // mockable

	secretKey                 []byte
	passwordResetTimeoutDelta time.Duration

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

func initTokenGen(secret string, timeoutDelta time.Duration) {
	secretKey = []byte(secret)
	passwordResetTimeoutDelta = timeoutDelta
}

// makeToken generates a password-reset token for the given email.
func makeToken(email string) string {
	return makeTokenWithTimestamp(email, nowFunc().Unix())
}

// verifyToken checks a password-reset token and returns the email it was issued for.
func verifyToken(token string) (string, error) {
	if token == "" {
		return "", errInvalidToken
	}

	// "." never appears in any of the three encodings
	parts := strings.SplitN(token, ".", 3)
	if len(parts) < 3 {
		return "", errInvalidToken
	}

	emailBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errInvalidToken
	}
	email := string(emailBytes)

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[1])
	if err != nil {
		return "", errInvalidToken
	}
	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return "", errInvalidToken
	}

	// check that token has not been tampered with
	newToken := makeTokenWithTimestamp(email, ts)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return "", errInvalidToken
	}

	// check that the timestamp is within limit
	if nowFunc().Sub(time.Unix(ts, 0)) > passwordResetTimeoutDelta {
		return "", errTokenExpired
	}
	return email, nil
}

func makeTokenWithTimestamp(email string, ts int64) string {
	emailB64 := base64.RawURLEncoding.EncodeToString([]byte(email))
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.FormatInt(ts, 10)))
	return fmt.Sprintf("%s.%s.%s", emailB64, tsB32, sign(hashValue(email, ts)))
}

func sign(val []byte) string {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(email string, ts int64) []byte {
	var val bytes.Buffer
	val.WriteString(email)
	val.WriteString(strconv.FormatInt(ts, 10))
	return val.Bytes()
}
