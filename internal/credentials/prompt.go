package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoTerminal reports that credentials cannot be requested because input
// is not interactive.
var ErrNoTerminal = errors.New("standard input is not a terminal")

// Prompter asks the user for a login. user is the name already known, if
// any, and is offered as the default.
type Prompter interface {
	Prompt(user string) (string, string, error)
}

// TerminalPrompter reads the user name as a line and the password without
// echo.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stdin and writes questions to stderr.
func NewTerminalPrompter() TerminalPrompter {
	return TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p TerminalPrompter) Prompt(user string) (string, string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", "", ErrNoTerminal
	}

	if user == "" {
		fmt.Fprint(p.Out, "EPrints server login: ")
	} else {
		fmt.Fprintf(p.Out, "EPrints server login [%s]: ", user)
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("read login: %w", err)
	}
	if typed := strings.TrimSpace(line); typed != "" {
		user = typed
	}

	fmt.Fprintf(p.Out, "Password for %q: ", user)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return user, string(password), nil
}
