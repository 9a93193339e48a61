package esoss

import (
	"context"
	"errors"
	"fmt"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"esovm.org/esovm/evm1"
)

// ErrCycleLimit is the result of a thread which used all of its cycles without halting
var ErrCycleLimit = errors.New("cycle limit reached")

// Task is a thread to be scheduled
type Task struct {
	Name   string
	Thread *evm1.Thread
}

// Result is the outcome of a Task.
// Err is nil if the thread halted normally.
type Result struct {
	Name  string
	Steps uint64
	Err   error
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v after %d steps", r.Name, r.Err, r.Steps)
	}
	return fmt.Sprintf("%s: halted after %d steps", r.Name, r.Steps)
}

// RunRoundRobin runs the tasks on the calling goroutine, quantum cycles at a time, until every task has finished.
// maxCycles limits each thread, 0 is unlimited.
// A fault stops only the thread which caused it. The returned error is only for cancellation.
func RunRoundRobin(ctx context.Context, tasks []Task, quantum, maxCycles uint64) ([]Result, error) {
	if quantum == 0 {
		return nil, errors.New("quantum must be positive")
	}
	results := make([]Result, len(tasks))
	done := make([]bool, len(tasks))
	live := len(tasks)
	for live > 0 {
		for i, task := range tasks {
			if done[i] {
				continue
			}
			fin, err := slice(ctx, task, quantum, maxCycles)
			if err != nil {
				return results, err
			}
			if fin {
				done[i] = true
				live--
				results[i] = finish(ctx, task, maxCycles)
			}
		}
		logctx.Debug(ctx, "round complete", zap.Int("live", live))
	}
	return results, nil
}

// RunParallel runs each task on its own goroutine.
func RunParallel(ctx context.Context, tasks []Task, quantum, maxCycles uint64) ([]Result, error) {
	if quantum == 0 {
		return nil, errors.New("quantum must be positive")
	}
	results := make([]Result, len(tasks))
	eg, ctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		eg.Go(func() error {
			for {
				fin, err := slice(ctx, task, quantum, maxCycles)
				if err != nil {
					return err
				}
				if fin {
					results[i] = finish(ctx, task, maxCycles)
					return nil
				}
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// slice runs a task for up to quantum cycles, it returns true when the task is finished.
func slice(ctx context.Context, task Task, quantum, maxCycles uint64) (bool, error) {
	th := task.Thread
	n := quantum
	if maxCycles > 0 {
		if th.Steps() >= maxCycles {
			return true, nil
		}
		n = min(n, maxCycles-th.Steps())
	}
	if _, err := th.Run(ctx, n); err != nil && !th.Halted() {
		// cancelled
		return false, err
	}
	return th.Halted() || (maxCycles > 0 && th.Steps() >= maxCycles), nil
}

func finish(ctx context.Context, task Task, maxCycles uint64) Result {
	th := task.Thread
	res := Result{Name: task.Name, Steps: th.Steps(), Err: th.Err()}
	switch {
	case !th.Halted():
		res.Err = ErrCycleLimit
		logctx.Info(ctx, "thread stopped", zap.String("thread", task.Name), zap.Uint64("max_cycles", maxCycles))
	case res.Err != nil:
		fields := []zap.Field{zap.String("thread", task.Name), zap.Uint64("steps", res.Steps), zap.Error(res.Err)}
		var f *evm1.Fault
		if errors.As(res.Err, &f) {
			fields = append(fields, zap.Strings("trace", f.Trace))
		}
		logctx.Error(ctx, "thread faulted", fields...)
	default:
		logctx.Info(ctx, "thread halted", zap.String("thread", task.Name), zap.Uint64("steps", res.Steps))
	}
	return res
}
