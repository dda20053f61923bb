package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/user"
)

// addTeacher creates a Teacher account. The public API only ever registers
// Students; teachers are provisioned here.
func (cli *commandLine) addTeacher(email, firstName, lastName, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if _, err := cli.usrRepo.GetUserByEmail(ctx, email); err == nil {
		return errors.New("a user with this email already exists")
	} else if errors.Cause(err) != user.ErrNotFound {
		return err
	}

	usr := user.User{
		Email:     email,
		FirstName: core.CleanString(firstName),
		LastName:  core.CleanString(lastName),
		Role:      user.RoleTeacher,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err := cli.usrRepo.CreateUser(ctx, usr)
	return err
}
