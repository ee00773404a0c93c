// Package prompt asks the user for confirmations and elevation passwords on
// the controlling terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/cruft-ninja/script-runner/internal/credential"
	"github.com/cruft-ninja/script-runner/internal/output"
)

var errCanceled = errors.New("prompt canceled")

// IsCanceled reports whether err means the user dismissed the prompt.
func IsCanceled(err error) bool {
	return errors.Is(err, errCanceled)
}

// Prompter handles interactive prompts. Prompts are serialized so concurrent
// runs never interleave on the terminal.
type Prompter struct {
	mu           sync.Mutex
	out          *output.Writer
	reader       *bufio.Reader
	readPassword func() ([]byte, error)
	interactive  bool
}

// New creates a Prompter reading from the terminal on stdin.
func New(out *output.Writer) *Prompter {
	fd := int(os.Stdin.Fd())

	return &Prompter{
		out:    out,
		reader: bufio.NewReader(os.Stdin),
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(fd)
		},
		interactive: out.Terminal().InteractiveEnabled() && !out.NoInput,
	}
}

// NewWithInput creates a Prompter that reads answers, including passwords,
// line by line from in. Input is echoed by whatever feeds in.
func NewWithInput(out *output.Writer, in io.Reader) *Prompter {
	p := &Prompter{
		out:         out,
		reader:      bufio.NewReader(in),
		interactive: !out.NoInput,
	}

	p.readPassword = func() ([]byte, error) {
		line, err := p.readLine()
		return []byte(line), err
	}

	return p
}

// CanPrompt returns true if interactive prompts are available.
func (p *Prompter) CanPrompt() bool {
	return p.interactive
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	if err != nil && (input == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", errCanceled
		}

		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimRight(input, "\r\n"), nil
}

// Confirm prompts for a yes/no confirmation.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, defaultStr)

	input, err := p.readLine()
	if err != nil {
		return defaultValue, err
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}

// Password prompts once for hidden input. End of input cancels.
func (p *Prompter) Password(prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.password(prompt)
}

func (p *Prompter) password(prompt string) (string, error) {
	p.out.Print("%s: ", prompt)

	password, err := p.readPassword()
	p.out.Println()

	if err != nil {
		if errors.Is(err, io.EOF) || IsCanceled(err) {
			return "", errCanceled
		}

		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(password), nil
}

// RequestCredential asks for the elevation password of a script until a
// non-empty answer is given. It returns false when input ends, reading
// fails or ctx is done before the prompt is shown.
func (p *Prompter) RequestCredential(ctx context.Context, req credential.Prompt) (credential.Secret, bool) {
	if !p.interactive {
		return credential.Secret{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	label := req.Label
	if label == "" {
		label = req.Identity
	}

	for {
		// term.ReadPassword cannot be interrupted; ctx is checked between attempts.
		if ctx.Err() != nil {
			return credential.Secret{}, false
		}

		input, err := p.password(fmt.Sprintf("[sudo] password for %s", label))
		if err != nil {
			return credential.Secret{}, false
		}

		if err := credential.Validate(input); err != nil {
			p.out.Warning("Password cannot be empty.")
			continue
		}

		return credential.NewSecret(input), true
	}
}
