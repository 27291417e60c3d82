package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
)

// Releaser is implemented by every pipeline-owned runtime object.
type Releaser interface {
	Release() error
}

// owned releases one driver object at most once.
type owned struct {
	kind     string
	released bool
	free     func() error
}

// Release frees the driver object. Later calls are no-ops.
func (o *owned) Release() error {
	if o.released {
		return nil
	}
	o.released = true
	if err := o.free(); err != nil {
		return fmt.Errorf("release %s: %w", o.kind, err)
	}
	return nil
}

// Released reports whether Release has run.
func (o *owned) Released() bool {
	return o.released
}

// Scope releases the objects added to it in reverse order of addition.
type Scope struct {
	logger *slog.Logger
	items  []Releaser
}

// NewScope returns an empty scope that logs release failures to logger.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{logger: logger}
}

// Add registers r for release when the scope closes.
func (s *Scope) Add(r Releaser) {
	s.items = append(s.items, r)
}

// Close releases everything still held, newest first. A failed release
// does not stop the ones after it.
func (s *Scope) Close() error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		if err := s.items[i].Release(); err != nil {
			s.logger.Warn("Release failed", "err", err)
			errs = append(errs, err)
		}
	}
	s.items = nil
	return errors.Join(errs...)
}
