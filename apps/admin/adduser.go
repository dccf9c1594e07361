package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
)

type newUserArgs struct {
	name, uname, email, pwd, role, grader string
}

// addUser updates or creates a user.User with the given role.
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(args.uname, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)

	if err := cli.validate.Var(uname, "required,username"); err != nil {
		return errors.Errorf("invalid username %q", uname)
	}
	if err := cli.validate.Var(email, "required,email"); err != nil {
		return errors.Errorf("invalid email %q", email)
	}
	role, err := perm.ParseRole(args.role)
	if err != nil {
		return err
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{Username: uname, Email: email}
	}
	if name := core.CleanString(args.name); name != "" {
		usr.Name = name
	}
	usr.Permission = role.Mask()
	usr.IsActive = true

	if args.grader != "" {
		grader, err := cli.usrSvc.GetByUsername(ctx, args.grader)
		if err != nil {
			return errors.Wrap(err, "finding grader")
		}
		if !grader.IsActive || !grader.Can(perm.WriteGradeEveryone) {
			return user.ErrInvalidGrader
		}
		usr.GraderID = grader.ID
	}

	if err = usr.SetPassword(args.pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s saved as %s.\n", usr.Username, role)
	return nil
}
