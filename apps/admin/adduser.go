package main

import (
	"context"
	"fmt"

	"github.com/trezcool/darasa/core/user"
)

// addUser creates a user.User, applying the same rules as the API.
func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Create(context.Background(), operator, nu)
	if err != nil {
		return err
	}
	fmt.Printf("%s %q created.\n", usr.Role, usr.Username)
	return nil
}
