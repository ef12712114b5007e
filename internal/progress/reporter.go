// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

// TerminalEventWait is how long Report waits for buffer space for a terminal event.
const TerminalEventWait = time.Second

var _ Reporter = (*ChannelReporter)(nil)

// ChannelReporter implements Reporter using a buffered channel.
type ChannelReporter struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Int64
}

// NewChannelReporter creates a new ChannelReporter with the specified buffer size.
func NewChannelReporter(ctx context.Context, bufferSize int) *ChannelReporter {
	reporterCtx, cancel := context.WithCancel(ctx)

	return &ChannelReporter{
		ch:     make(chan Event, bufferSize),
		ctx:    reporterCtx,
		cancel: cancel,
	}
}

// Report implements Reporter.
// The event is dropped if the reporter is closed or the buffer is full. Terminal events
// wait up to TerminalEventWait for buffer space first.
func (cr *ChannelReporter) Report(event Event) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	if cr.closed {
		return
	}

	select {
	case cr.ch <- event:
		return
	case <-cr.ctx.Done():
		return
	default:
	}

	if event.Type.Terminal() {
		timer := time.NewTimer(TerminalEventWait)
		defer timer.Stop()

		select {
		case cr.ch <- event:
			return
		case <-cr.ctx.Done():
			return
		case <-timer.C:
		}
	}

	cr.dropped.Add(1)
	ctxlog.Debug(cr.ctx, "progress event dropped, buffer full",
		"event", event.Type.String(), "source", event.Source, "buffer", cap(cr.ch))
}

// Dropped returns how many events were discarded because the buffer was full.
func (cr *ChannelReporter) Dropped() int64 {
	return cr.dropped.Load()
}

// Close implements Reporter. Events already buffered are delivered to listeners
// before Close returns.
func (cr *ChannelReporter) Close() {
	cr.once.Do(func() {
		cr.mu.Lock()
		cr.closed = true
		close(cr.ch)
		cr.mu.Unlock()
		cr.wg.Wait()
		cr.cancel()
	})
}

// Listen starts a goroutine that forwards events to listener until the reporter is
// closed or its context is cancelled.
func (cr *ChannelReporter) Listen(listener Listener) {
	cr.wg.Add(1)

	go func() {
		defer cr.wg.Done()

		for {
			select {
			case event, ok := <-cr.ch:
				if !ok {
					return
				}

				listener.OnEvent(event)
			case <-cr.ctx.Done():
				return
			}
		}
	}()
}

// Events returns the underlying channel for manual consumption.
func (cr *ChannelReporter) Events() <-chan Event {
	return cr.ch
}

// Context returns the reporter's context. It is cancelled when the reporter is closed.
func (cr *ChannelReporter) Context() context.Context {
	return cr.ctx
}

// LogListener returns a Listener that writes every event to logger.
// Terminal and failure events are logged at warn, everything else at info.
func LogListener(logger *slog.Logger) Listener {
	return ListenerFunc(func(event Event) {
		args := make([]any, 0, 2*len(event.Data)+4)
		args = append(args, "event", event.Type.String(), "source", event.Source)

		keys := make([]string, 0, len(event.Data))
		for k := range event.Data {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			args = append(args, k, event.Data[k])
		}

		switch event.Type {
		case EventThreadAbandoned, EventEndedByCommand, EventExecutionHalted:
			logger.Warn(event.Message, args...)
		default:
			logger.Info(event.Message, args...)
		}
	})
}

// Recorder keeps every reported event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

var _ Reporter = (*Recorder)(nil)

// Report implements Reporter.
func (r *Recorder) Report(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

// Close implements Reporter.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event

	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}

	return out
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}
