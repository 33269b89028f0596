package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Step represents a single step in a saga with an execute and compensate function.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError reports the step that failed and the outcome of compensating
// the steps before it. It unwraps to the step's own error.
type StepError struct {
	Saga            string
	Step            string
	Index           int
	Err             error
	CompensationErr error
}

func (e *StepError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga orchestrates a series of steps with automatic compensation on failure.
type Saga struct {
	name              string
	steps             []Step
	compensateTimeout time.Duration
}

type Option func(*Saga)

// WithCompensationTimeout bounds the whole compensation pass. Compensation
// runs detached from the caller's cancellation so a timed-out call still
// cleans up.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Saga) { s.compensateTimeout = d }
}

// New creates a new saga with the given name.
func New(name string, opts ...Option) *Saga {
	s := &Saga{name: name, compensateTimeout: 30 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all steps sequentially. If one fails, completed steps are
// compensated in reverse order and a *StepError is returned.
func (s *Saga) Execute(ctx context.Context) error {
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			return &StepError{
				Saga:            s.name,
				Step:            step.Name,
				Index:           i,
				Err:             err,
				CompensationErr: s.compensate(ctx, completed),
			}
		}
		completed = append(completed, i)
	}

	return nil
}

func (s *Saga) compensate(ctx context.Context, completedIndexes []int) error {
	if len(completedIndexes) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if s.compensateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.compensateTimeout)
		defer cancel()
	}

	var errs []error
	for i := len(completedIndexes) - 1; i >= 0; i-- {
		step := s.steps[completedIndexes[i]]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
