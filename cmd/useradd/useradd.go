package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/flagx"
	"github.com/dmitrijs2005/tunevault/internal/server/models"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"
)

const minPasswordLen = 8

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

type registrar interface {
	RegisterWithRole(ctx context.Context, email, name, password, role string) (*models.User, error)
}

type options struct {
	Email string `validate:"required,email,max=254"`
	Name  string `validate:"required,max=100"`
	Role  string `validate:"required,oneof=user admin"`
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.StringVar(&o.Email, "email", "", "account email")
	fs.StringVar(&o.Name, "name", "", "display name")
	fs.StringVar(&o.Role, "role", common.DefaultUserRole, "role: user or admin")

	if err := flagx.ParseOwn(fs, args); err != nil {
		return o, err
	}
	if err := validator.New().Struct(o); err != nil {
		return o, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return o, nil
}

func run(ctx context.Context, o options, svc registrar, in *os.File, out io.Writer) error {
	password, err := readSecret(in, out)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	defer common.WipeByteArray(password)

	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}

	user, err := svc.RegisterWithRole(ctx, o.Email, o.Name, string(password), o.Role)
	if err != nil {
		if errors.Is(err, common.ErrUserAlreadyExists) {
			return fmt.Errorf("user %s already exists", o.Email)
		}
		return err
	}

	fmt.Fprintf(out, "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

func readSecret(in *os.File, out io.Writer) ([]byte, error) {
	fd := int(in.Fd())
	if !isTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	fmt.Fprint(out, "Enter password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(out, "Repeat password: ")
	again, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(again)

	if string(pw) != string(again) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}
