package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const telemetryFlushTimeout = 5 * time.Second

type cleanupStep struct {
	name string
	fn   func() error
}

// cleanupStack releases the resources acquired while a command starts up.
// Steps run in reverse order of registration, so the logger is closed after
// the telemetry flush that may still log.
type cleanupStack struct {
	steps []cleanupStep
}

func (s *cleanupStack) push(name string, fn func() error) {
	s.steps = append(s.steps, cleanupStep{name: name, fn: fn})
}

func (s *cleanupStack) run() error {
	var errs []error

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.fn(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", step.name, err)) //nolint:rawerror // internal cleanup, not user-facing
		}
	}

	s.steps = nil

	return errors.Join(errs...)
}

// after returns a PostRunE that runs postRun, then the stack. A postRun
// error wins over cleanup errors.
func (s *cleanupStack) after(postRun func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	if len(s.steps) == 0 {
		return postRun
	}

	return func(cmd *cobra.Command, args []string) error {
		if postRun != nil {
			if err := postRun(cmd, args); err != nil {
				_ = s.run()
				return err
			}
		}

		return s.run()
	}
}
