package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"tumblrbackup/pkg/auth"
)

// ErrNoInput is returned when the user enters nothing
var ErrNoInput = errors.New("no input provided")

// Prompter reads answers from a terminal, hiding secrets when stdin is a TTY
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	secret func() (string, error)
}

// NewPrompter reads from stdin and writes prompts to stderr
func NewPrompter() *Prompter {
	p := &Prompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.secret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
	}
	return p
}

// NewPrompterWithIO is for tests and non-interactive use; secrets echo
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the trimmed line
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// AskSecret is Ask without echo when attached to a terminal
func (p *Prompter) AskSecret(label string) (string, error) {
	if p.secret == nil {
		return p.Ask(label)
	}
	fmt.Fprint(p.out, label)
	return p.secret()
}

// Confirm asks a yes/no question; empty input takes def
func (p *Prompter) Confirm(label string, def bool) (bool, error) {
	hint := " (y/N): "
	if def {
		hint = " (Y/n): "
	}
	answer, err := p.Ask(label + hint)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// PromptTokens asks for an access token and secret pasted by the user
func (p *Prompter) PromptTokens(ctx context.Context) (*auth.TokenPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out, "OAuth tokens not found or invalid.")
	fmt.Fprintln(p.out, "Run `tumblr-backup auth login` to authorize this app, or paste existing tokens now.")

	token, err := p.Ask("OAuth token: ")
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoInput
	}
	secret, err := p.AskSecret("OAuth token secret: ")
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrNoInput
	}
	return &auth.TokenPair{AccessToken: token, AccessTokenSecret: secret}, nil
}
