package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// undoTimeout bounds each compensating action once it is detached from the
// caller's context.
const undoTimeout = 30 * time.Second

// Step is one forward action of a multi-store write with its compensation.
// Undo may be nil for steps that have nothing to roll back.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// runSteps executes steps in order. When a step fails, the Undo of every step
// that already completed runs in reverse order, under a context that ignores
// the caller's cancellation. The returned error wraps the failing step's error
// joined with any compensation errors. onUndo, when set, sees every Undo result.
func runSteps(ctx context.Context, steps []Step, onUndo func(step string, err error)) error {
	done := make([]Step, 0, len(steps))

	for _, st := range steps {
		if err := st.Do(ctx); err != nil {
			errs := []error{fmt.Errorf("%s: %w", st.Name, err)}
			errs = append(errs, compensate(ctx, done, onUndo)...)
			return errors.Join(errs...)
		}
		done = append(done, st)
	}

	return nil
}

func compensate(ctx context.Context, done []Step, onUndo func(step string, err error)) []error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.Undo == nil {
			continue
		}

		undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
		err := st.Undo(undoCtx)
		cancel()

		if onUndo != nil {
			onUndo(st.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", st.Name, err))
		}
	}
	return errs
}
