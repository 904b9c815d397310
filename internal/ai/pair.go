package ai

import (
	"context"
	"fmt"
	"time"
)

// Task is one unit of work run by RunPair.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the result of a Task and how long it ran.
type Outcome[T any] struct {
	Value   T
	Err     error
	Elapsed time.Duration
}

// RunPair starts primary and, when non-nil, shadow concurrently. It always
// waits for primary. Once primary has succeeded it waits at most wait for
// shadow, then cancels the shadow context and returns without waiting further.
// A failed primary cancels shadow at once unless shadow has already finished.
// The shadow result is reported only when ok is true.
//
// Each task writes to its own buffered channel, so an abandoned shadow
// goroutine exits as soon as its call observes cancellation.
func RunPair[T any](ctx context.Context, primary, shadow Task[T], wait time.Duration) (p Outcome[T], s Outcome[T], ok bool) {
	shadowCtx, cancelShadow := context.WithCancel(ctx)
	defer cancelShadow()

	primaryCh := make(chan Outcome[T], 1)
	go runTask(ctx, primary, primaryCh)

	var shadowCh chan Outcome[T]
	if shadow != nil {
		shadowCh = make(chan Outcome[T], 1)
		go runTask(shadowCtx, shadow, shadowCh)
	}

	p = <-primaryCh
	if shadowCh == nil {
		return p, s, false
	}

	select {
	case s = <-shadowCh:
		return p, s, true
	default:
	}
	if p.Err != nil {
		return p, Outcome[T]{}, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s = <-shadowCh:
		return p, s, true
	case <-timer.C:
		return p, Outcome[T]{}, false
	case <-ctx.Done():
		return p, Outcome[T]{}, false
	}
}

func runTask[T any](ctx context.Context, task Task[T], out chan<- Outcome[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out <- Outcome[T]{Err: fmt.Errorf("task panicked: %v", r), Elapsed: time.Since(start)}
		}
	}()

	v, err := task(ctx)
	out <- Outcome[T]{Value: v, Err: err, Elapsed: time.Since(start)}
}
