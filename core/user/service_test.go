package user

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukit/gradebook/core"
)

// memRepo is a minimal in-memory Repository for service tests.
type memRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int]User)}
}

func (r *memRepo) CreateUser(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	usr.ID = r.seq
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *memRepo) GetUserByID(_ context.Context, id int) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usr, ok := r.users[id]; ok {
		return usr, nil
	}
	return User{}, ErrNotFound
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memRepo) GetUserByEmailAndRole(_ context.Context, email, role string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		if usr.Email == email && usr.Role == role {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memRepo) UpdateUser(_ context.Context, usr User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[usr.ID] = usr
	return usr, nil
}

// mailRecorder records messages synchronously.
type mailRecorder struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.messages = append(m.messages, *msg)
	}
}

func testConfig() *core.Config {
	return &core.Config{
		AppName:         "Gradebook",
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:4200",
		Server: core.ServerConfig{
			JWTExpirationDelta:        24 * time.Hour,
			PasswordResetTimeoutDelta: time.Hour,
		},
	}
}

func newTestService() (Service, *memRepo, *mailRecorder) {
	repo := newMemRepo()
	mailer := new(mailRecorder)
	return NewService(repo, mailer, testConfig()), repo, mailer
}

func TestService_Register(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	usr, err := svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, usr.Role)
	assert.NoError(t, usr.CheckPassword("s3cret"))

	// duplicate email
	_, err = svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Email already in use", vErr.Error())
}

func TestService_Authenticate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	usr, err := svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "ok", email: "jane@test.cd", pwd: "s3cret"},
		{name: "email is case-insensitive", email: "JANE@Test.CD", pwd: "s3cret"},
		{name: "unknown email", email: "nope@test.cd", pwd: "s3cret", wantErr: ErrInvalidCredentials},
		{name: "wrong password", email: "jane@test.cd", pwd: "nope", wantErr: ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Authenticate(ctx, tt.email, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	svc, _, mailer := newTestService()
	ctx := context.Background()

	usr, err := svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)

	// unknown email surfaces ErrNotFound for the API layer to render
	err = svc.RequestPasswordReset(ctx, "nope@test.cd")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Empty(t, mailer.messages)

	require.NoError(t, svc.RequestPasswordReset(ctx, usr.Email))
	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	assert.Equal(t, "Reset password", msg.Subject)
	assert.Equal(t, []mail.Address{{Name: "Jane Doe", Address: "jane@test.cd"}}, msg.To)
	assert.Contains(t, msg.Body, "http://localhost:4200/reset-password?token=")

	// complete the round trip with the emailed token
	token := msg.Body[strings.Index(msg.Body, "token=")+len("token="):]
	require.NoError(t, svc.ResetPassword(ctx, token, "n3wpass"))
	got, err := svc.Authenticate(ctx, usr.Email, "n3wpass")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	// bad token
	err = svc.ResetPassword(ctx, "not-a-token", "n3wpass")
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Bad confirmation token", vErr.Error())

	// expired token
	nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired := makeToken(usr.Email)
	nowFunc = time.Now
	err = svc.ResetPassword(ctx, expired, "n3wpass")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Email confirmation token expired", vErr.Error())
}

func TestService_ChangeEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, NewUser{Email: "john@test.cd", FirstName: "John", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)

	var vErr *core.ValidationError

	// same email
	_, err = svc.ChangeEmail(ctx, "jane@test.cd", "jane@test.cd")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "The new email must be different from the current email.", vErr.Error())

	// taken email
	_, err = svc.ChangeEmail(ctx, "jane@test.cd", "john@test.cd")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "There is already a user with the email: john@test.cd", vErr.Error())

	// unknown current user
	_, err = svc.ChangeEmail(ctx, "nope@test.cd", "new@test.cd")
	assert.True(t, core.IsNotFound(err))
	assert.EqualError(t, err, "No user found for email: nope@test.cd")

	// ok
	usr, err := svc.ChangeEmail(ctx, "jane@test.cd", "jane2@test.cd")
	require.NoError(t, err)
	assert.Equal(t, "jane2@test.cd", usr.Email)
	_, err = svc.GetByEmail(ctx, "jane@test.cd")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_ChangeImage(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, NewUser{Email: "jane@test.cd", FirstName: "Jane", LastName: "Doe", Password: "s3cret"})
	require.NoError(t, err)

	usr, err := svc.ChangeImage(ctx, "jane@test.cd", "data:image/png;base64,xyz")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,xyz", usr.Image)

	_, err = svc.ChangeImage(ctx, "nope@test.cd", "data:image/png;base64,xyz")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}
