package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/edukit/gradebook/core/user"
	dummydb "github.com/edukit/gradebook/storage/database/dummy"
)

var usrRepo user.Repository

func setup(_ *testing.T) *commandLine {
	usrRepo = dummydb.NewUserRepository(dummydb.NewDB())
	return &commandLine{usrRepo: usrRepo}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

type pwdExtra struct {
	pwd string
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(pwdExtra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				if tt.wantErr != nil || tt.wantErrStr != "" {
					t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
				} else if check != nil {
					check(t, tt)
				}
				return
			}
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			} else if tt.wantErrStr != "" {
				if err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
				}
			} else {
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_addTeacher(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addteacher"}, wantErr: errHelp},
		{name: "email but no names", args: []string{"addteacher", "-email", "t@test.cd"}, wantErr: errHelp},
		{name: "no password", args: []string{"addteacher", "-email", "t@test.cd", "-firstname", "John", "-lastname", "Doe"}, wantErr: errHelp},
		{name: "ok", args: []string{"addteacher", "-email", "t@test.cd", "-firstname", "John", "-lastname", "Doe"}, extra: pwdExtra{pwd: "s3cret"}},
		{name: "duplicate email", args: []string{"addteacher", "-email", "t@test.cd", "-firstname", "John", "-lastname", "Doe"},
			extra: pwdExtra{pwd: "s3cret"}, wantErrStr: "a user with this email already exists"},
	}
	runCliTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		usr, err := usrRepo.GetUserByEmail(context.Background(), "t@test.cd")
		if err != nil {
			t.Fatalf("GetUserByEmail() failed, %v", err)
		}
		if !usr.IsTeacher() {
			t.Errorf("created user role = %s, want %s", usr.Role, user.RoleTeacher)
		}
		if usr.CheckPassword("s3cret") != nil {
			t.Error("failed to set password")
		}
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := user.User{Email: "awe@test.cd", FirstName: "Awe", LastName: "Some", Role: user.RoleStudent}
	if err := usr.SetPassword("mdr"); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: pwdExtra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: pwdExtra{pwd: "lmao"}},
	}
	runCliTests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshedUsr, err := usrRepo.GetUserByID(context.Background(), usr.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed, %v", err)
		}
		if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
			t.Error("failed to update new password")
		}
	})
}
