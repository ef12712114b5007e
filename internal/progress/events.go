// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"maps"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

// Event is a single status update.
type Event struct {
	Type      EventType
	Source    string         // Component that emitted the event, e.g. "strategy" or "lifecycle".
	Message   string         // Human-readable status message.
	Timestamp time.Time      // When the event occurred.
	Data      map[string]any // Event specific data.
}

// EventType names a status update.
type EventType int

const (
	// EventExperimentStarted is sent once when a strategy begins.
	EventExperimentStarted EventType = iota
	// EventStrategyProgress is sent before every iteration.
	EventStrategyProgress
	// EventIterationComplete is sent after every iteration with the result and running statistics.
	EventIterationComplete
	// EventStepWaiting is sent when the worker blocks waiting for a step command.
	EventStepWaiting
	// EventExecutionHalted is sent when the worker pauses.
	EventExecutionHalted
	// EventExecutionResumed is sent when a paused worker continues.
	EventExecutionResumed
	// EventEndedByCommand is sent when an end experiment command stops the strategy.
	EventEndedByCommand
	// EventStrategyComplete is the single terminal summary of a strategy.
	EventStrategyComplete
	// EventCleanupProgress is sent by the thread supervisor during shutdown.
	EventCleanupProgress
	// EventThreadAbandoned is sent when a worker could not be stopped.
	EventThreadAbandoned
)

var eventTypeNames = [...]string{
	EventExperimentStarted: "experiment_start",
	EventStrategyProgress:  "strategy_progress",
	EventIterationComplete: "iteration_complete",
	EventStepWaiting:       "step_waiting",
	EventExecutionHalted:   "execution_halted",
	EventExecutionResumed:  "execution_resumed",
	EventEndedByCommand:    "experiment_end_command",
	EventStrategyComplete:  "strategy_complete",
	EventCleanupProgress:   "cleanup_progress",
	EventThreadAbandoned:   "thread_abandoned",
}

// Terminal reports whether the event ends a strategy or gives up on a worker.
func (et EventType) Terminal() bool {
	switch et {
	case EventStrategyComplete, EventEndedByCommand, EventThreadAbandoned:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	if et < 0 || int(et) >= len(eventTypeNames) {
		return "unknown"
	}

	return eventTypeNames[et]
}

// NewEvent builds an event stamped with the current time. The data map is copied.
func NewEvent(t EventType, source, message string, data map[string]any) Event {
	return Event{
		Type:      t,
		Source:    source,
		Message:   message,
		Timestamp: time.Now(),
		Data:      maps.Clone(data),
	}
}

// Reporter is the sink for status updates.
type Reporter interface {
	// Report sends an event. Implementations must not block.
	Report(event Event)
	// Close signals that no more events will be sent.
	Close()
}

// Listener receives events from a ChannelReporter.
type Listener interface {
	OnEvent(event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(event Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(event Event) {
	f(event)
}

// NullReporter drops every event.
type NullReporter struct{}

// Report implements Reporter.
func (NullReporter) Report(Event) {}

// Close implements Reporter.
func (NullReporter) Close() {}

// NewNullReporter creates a new NullReporter.
func NewNullReporter() Reporter {
	return NullReporter{}
}

// Send reports event on r, recovering and logging if the reporter panics.
// A nil reporter is ignored.
func Send(ctx context.Context, r Reporter, event Event) {
	if r == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			ctxlog.Error(ctx, "status reporter panicked", "event", event.Type.String(), "panic", p)
		}
	}()

	r.Report(event)
}
