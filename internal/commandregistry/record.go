// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package commandregistry

import (
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
)

// Payload is the opaque key/value data attached to a command.
type Payload map[string]any

func (p Payload) clone() Payload {
	if p == nil {
		return Payload{}
	}

	return maps.Clone(p)
}

// Callback is invoked once when the command it was registered with is acknowledged.
type Callback func(kind Kind, response any)

// Record is one entry in the command history.
// Acknowledged always implies Processed.
type Record struct {
	ID                  ulid.ULID
	Kind                Kind
	IssuedAt            time.Time
	Payload             Payload
	ProcessingStarted   bool
	ProcessingStartedAt time.Time
	Processed           bool
	Acknowledged        bool
	AcknowledgedAt      time.Time
	Response            any
}

func (r *Record) copy() Record {
	c := *r
	c.Payload = r.Payload.clone()

	return c
}

// Lifecycle describes the timing of the most recent command of a kind.
type Lifecycle struct {
	ID                  ulid.ULID
	IssuedAt            time.Time
	ProcessingStartedAt time.Time
	AcknowledgedAt      time.Time
	TimeToProcessing    time.Duration
	ProcessingDuration  time.Duration
	TotalDuration       time.Duration
}

func lifecycleOf(r *Record) Lifecycle {
	l := Lifecycle{
		ID:                  r.ID,
		IssuedAt:            r.IssuedAt,
		ProcessingStartedAt: r.ProcessingStartedAt,
		AcknowledgedAt:      r.AcknowledgedAt,
	}

	if !r.ProcessingStartedAt.IsZero() {
		l.TimeToProcessing = r.ProcessingStartedAt.Sub(r.IssuedAt)
	}

	if !r.AcknowledgedAt.IsZero() {
		l.TotalDuration = r.AcknowledgedAt.Sub(r.IssuedAt)
		if !r.ProcessingStartedAt.IsZero() {
			l.ProcessingDuration = r.AcknowledgedAt.Sub(r.ProcessingStartedAt)
		}
	}

	return l
}
