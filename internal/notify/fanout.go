package notify

import (
	"context"
	"sync/atomic"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, in Instruction) error
}

// Report summarizes a fan-out.
type Report struct {
	Delivered int
	Failed    int
}

// FanOut dispatches every instruction on a bounded pool. Each delivery is
// independent: a failure is passed to onError and the rest carry on.
// onError may be called from several goroutines at once.
func FanOut(ctx context.Context, d Dispatcher, workers int, ins []Instruction, onError func(Instruction, error)) Report {
	var delivered, failed atomic.Int64

	pool := NewWorkerPool(workers)

	for _, in := range ins {
		pool.Submit(func() {
			if err := d.Dispatch(ctx, in); err != nil {
				failed.Add(1)
				if onError != nil {
					onError(in, err)
				}
				return
			}
			delivered.Add(1)
		})
	}

	pool.Wait()

	return Report{
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
}
