package checkers

import (
	"context"
	"fmt"
)

// Readier is implemented by long-running components that report whether they
// are able to serve, such as messaging transports.
type Readier interface {
	Ready() error
}

// ReadyChecker adapts a Readier into a health check.
type ReadyChecker struct {
	name   string
	target Readier
}

// NewReadyChecker creates a check named name that passes while target reports ready.
func NewReadyChecker(name string, target Readier) *ReadyChecker {
	return &ReadyChecker{name: name, target: target}
}

// Name returns the name of this health check.
func (r *ReadyChecker) Name() string {
	return r.name
}

// Check returns the target's readiness error, or ctx's error if it is already done.
func (r *ReadyChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.target.Ready(); err != nil {
		return fmt.Errorf("%s not ready: %w", r.name, err)
	}
	return nil
}
