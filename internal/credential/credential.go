// Package credential bridges elevation password requests from launch workers
// to whichever front end owns user interaction.
//
// A worker calls Requester.RequestCredential and blocks. The front end
// receives a *Request from Bridge.Requests, shows a prompt and answers it
// exactly once with Submit or Cancel.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const redacted = "[REDACTED]"

// ErrEmptyCredential is returned by Validate and Submit for empty input.
var ErrEmptyCredential = errors.New("password cannot be empty")

// Secret holds a credential. Every formatting path renders it redacted;
// only Reveal exposes the raw value.
type Secret struct {
	value string
}

// NewSecret wraps a raw credential.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the raw credential. Callers must not log or persist it.
func (s Secret) Reveal() string {
	return s.value
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return s.value == ""
}

func (Secret) String() string {
	return redacted
}

// GoString keeps %#v redacted.
func (Secret) GoString() string {
	return redacted
}

// Format keeps every fmt verb redacted.
func (Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON keeps encoded output redacted.
func (Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText keeps text encoders redacted.
func (Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Validate rejects empty submissions. Whitespace is a valid password.
func Validate(input string) error {
	if input == "" {
		return ErrEmptyCredential
	}

	return nil
}

// Prompt tells the front end which script is asking.
type Prompt struct {
	Identity string
	Label    string
}

// Requester obtains a credential for a launch. ok is false when the user
// cancelled or ctx ended; a cancelled request is distinct from any secret.
type Requester interface {
	RequestCredential(ctx context.Context, p Prompt) (secret Secret, ok bool)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, p Prompt) (Secret, bool)

// RequestCredential calls f.
func (f RequesterFunc) RequestCredential(ctx context.Context, p Prompt) (Secret, bool) {
	return f(ctx, p)
}

type answer struct {
	secret Secret
	ok     bool
}

// Request is a pending prompt. It resolves once; later answers are ignored.
type Request struct {
	Prompt Prompt

	reply chan answer
	once  sync.Once
}

func newRequest(p Prompt) *Request {
	return &Request{Prompt: p, reply: make(chan answer, 1)}
}

// Submit answers with input. Blank input returns ErrEmptyCredential and
// leaves the request pending so the front end can re-prompt.
func (r *Request) Submit(input string) error {
	if err := Validate(input); err != nil {
		return err
	}

	r.resolve(answer{secret: NewSecret(input), ok: true})

	return nil
}

// Cancel answers the request as aborted.
func (r *Request) Cancel() {
	r.resolve(answer{})
}

func (r *Request) resolve(a answer) {
	r.once.Do(func() {
		r.reply <- a
	})
}

// Bridge is a Requester that hands prompts to a front end over a channel.
type Bridge struct {
	requests chan *Request
}

// NewBridge creates a bridge. Requests block until the front end receives them.
func NewBridge() *Bridge {
	return &Bridge{requests: make(chan *Request)}
}

// Requests delivers pending prompts to the front end.
func (b *Bridge) Requests() <-chan *Request {
	return b.requests
}

// RequestCredential posts a prompt and waits for its answer.
func (b *Bridge) RequestCredential(ctx context.Context, p Prompt) (Secret, bool) {
	req := newRequest(p)

	select {
	case b.requests <- req:
	case <-ctx.Done():
		return Secret{}, false
	}

	select {
	case a := <-req.reply:
		return a.secret, a.ok
	case <-ctx.Done():
		req.Cancel()
		return Secret{}, false
	}
}
