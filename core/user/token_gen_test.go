package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	initTokenGen("secret", 1*time.Hour)

	email := "t@test.test"
	validToken := makeToken(email)

	// generate an expired token
	nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken := makeToken(email)
	nowFunc = time.Now // reset

	tests := []struct {
		name      string
		token     string
		wantEmail string
		wantErr   error
	}{
		{name: "no token", wantErr: errInvalidToken},
		{name: "invalid parts len", token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base64 email", token: "((((.NRXWY.sig", wantErr: errInvalidToken},
		{name: "invalid base32 timestamp", token: "dEB0ZXN0LnRlc3Q.hahaha.sig", wantErr: errInvalidToken},
		{name: "tampered signature", token: validToken[:len(validToken)-4] + "haha", wantErr: errInvalidToken},
		{name: "expired token", token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", token: validToken, wantEmail: email},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := verifyToken(tt.token)
			if err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantEmail {
				t.Errorf("verifyToken() = %v, want %v", got, tt.wantEmail)
			}
		})
	}
}
