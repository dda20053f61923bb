package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukit/gradebook/core/user"
	emailsvc "github.com/edukit/gradebook/services/email"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func Test_userApi_register(t *testing.T) {
	app := initApp(t)
	app.createUser(t, "taken@test.cd", user.RoleStudent, "s3cret")

	tests := []httpTest{
		{
			name:     "empty body fails validation",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"email":     "this field is required",
				"firstName": "this field is required",
				"lastName":  "this field is required",
				"password":  "this field is required",
			}),
		},
		{
			name:     "invalid email",
			body:     []byte(`{"email":"nope","firstName":"Jane","lastName":"Doe","password":"s3cret"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name:     "duplicate email",
			body:     []byte(`{"email":"taken@test.cd","firstName":"Jane","lastName":"Doe","password":"s3cret"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "Email already in use"}),
		},
		{
			name:     "ok",
			body:     []byte(`{"email":"jane@test.cd","firstName":"Jane","lastName":"Doe","password":"s3cret"}`),
			wantCode: http.StatusCreated,
			wantData: marchallObj(t, MessageResponse{Message: "You are now registered"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/auth/register", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// registration always produces a Student
	usr, err := app.usrSvc.GetByEmail(context.Background(), "jane@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
}

func Test_userApi_login(t *testing.T) {
	app := initApp(t)
	app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")

	tests := []httpTest{
		{
			name:     "unknown email",
			body:     []byte(`{"email":"nope@test.cd","password":"s3cret"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "Invalid credentials"}),
		},
		{
			name:     "wrong password",
			body:     []byte(`{"email":"jane@test.cd","password":"nope"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "Invalid credentials"}),
		},
		{
			name:     "ok",
			body:     []byte(`{"email":"jane@test.cd","password":"s3cret"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/auth/login", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp TokenResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app := initApp(t)
	usr := app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")
	staleToken := getToken(t, user.User{ID: 999})

	tests := []httpTest{
		{
			name:     "no token",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "token for a deleted user",
			token:    staleToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "User not found"}),
		},
		{
			name:     "ok",
			token:    getToken(t, usr),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, MeResponse{FirstName: "Test", LastName: "User", Email: "jane@test.cd", Role: user.RoleStudent}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/auth/me", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_forgotPassword(t *testing.T) {
	app := initApp(t)
	app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")

	tests := []httpTest{
		{
			name:     "unknown email leaks account existence",
			body:     []byte(`{"email":"nope@test.cd"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "No user found for email: nope@test.cd"}),
		},
		{
			name:     "ok",
			body:     []byte(`{"email":"jane@test.cd"}`),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, MessageResponse{Message: "A confirmation link has been sent to your email."}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/auth/forgot-password", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Reset password", msg.Subject)
	assert.Contains(t, msg.Body, "http://localhost:4200/reset-password?token=")

	// fourth request within the minute is throttled (the table consumed two)
	req, rec := newRequest(http.MethodPost, "/auth/forgot-password", []byte(`{"email":"jane@test.cd"}`))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	req, rec = newRequest(http.MethodPost, "/auth/forgot-password", []byte(`{"email":"jane@test.cd"}`))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func Test_userApi_resetPassword(t *testing.T) {
	app := initApp(t)
	app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")

	// obtain a live token from the reset email
	req, rec := newRequest(http.MethodPost, "/auth/forgot-password", []byte(`{"email":"jane@test.cd"}`))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, emailsvc.SentMessages, 1)
	body := emailsvc.SentMessages[0].Body
	token := strings.TrimSpace(body[strings.Index(body, "token=")+len("token="):])

	tests := []httpTest{
		{
			name:     "bad token",
			body:     []byte(`{"token":"lol","password":"n3wpass"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "Bad confirmation token"}),
		},
		{
			name:     "ok",
			body:     marchallObj(t, ResetPasswordRequest{Token: token, Password: "n3wpass"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, MessageResponse{Message: "Password changed"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/auth/reset-password", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password is live
	_, err := app.usrSvc.Authenticate(context.Background(), "jane@test.cd", "n3wpass")
	assert.NoError(t, err)
}

func Test_userApi_changeEmail(t *testing.T) {
	app := initApp(t)
	usr := app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")
	app.createUser(t, "taken@test.cd", user.RoleStudent, "s3cret")
	token := getToken(t, usr)

	tests := []httpTest{
		{
			name:     "no token",
			body:     []byte(`{"email":"jane@test.cd","newEmail":"jane2@test.cd"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "same email",
			token:    token,
			body:     []byte(`{"email":"jane@test.cd","newEmail":"jane@test.cd"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "The new email must be different from the current email."}),
		},
		{
			name:     "taken email",
			token:    token,
			body:     []byte(`{"email":"jane@test.cd","newEmail":"taken@test.cd"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "There is already a user with the email: taken@test.cd"}),
		},
		{
			name:     "unknown current email",
			token:    token,
			body:     []byte(`{"email":"nope@test.cd","newEmail":"jane2@test.cd"}`),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "No user found for email: nope@test.cd"}),
		},
		{
			name:     "ok",
			token:    token,
			body:     []byte(`{"email":"jane@test.cd","newEmail":"jane2@test.cd"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, "/auth/change-email", tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.name == "ok" {
				var resp TokenMessageResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "Email changed", resp.Message)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_changeImage(t *testing.T) {
	app := initApp(t)
	app.createUser(t, "jane@test.cd", user.RoleStudent, "s3cret")
	image := "data:image/png;base64,iVBORw0KGgo="

	tests := []httpTest{
		{
			name:     "unknown email",
			body:     marchallObj(t, ChangeImageRequest{Email: "nope@test.cd", Image: image}),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "No user found for email: nope@test.cd"}),
		},
		{
			name:     "ok",
			body:     marchallObj(t, ChangeImageRequest{Email: "jane@test.cd", Image: image}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPut, "/image/change-image", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.name == "ok" {
				var resp TokenMessageResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "Image changed", resp.Message)
				assert.NotEmpty(t, resp.Token)

				usr, err := app.usrSvc.GetByEmail(context.Background(), "jane@test.cd")
				require.NoError(t, err)
				assert.Equal(t, image, usr.Image)
			}
		})
	}
}
