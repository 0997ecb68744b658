package main

import (
	"context"

	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/user"
)

// addUser creates a staff account. The password goes through the same policy
// checks as the register endpoint.
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	data := user.NewUser{
		Name:            core.CleanString(name),
		Username:        core.CleanString(uname, true /* lower */),
		Email:           core.CleanString(email, true /* lower */),
		Role:            core.CleanString(role, true /* lower */),
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err := data.Validate(cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), data)
	if err != nil {
		return err
	}
	logger.Printf("created %s %q (%s)", usr.Role, usr.Username, usr.ID)
	return nil
}
