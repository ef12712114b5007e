// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// outputCapture keeps up to max bytes of output and tracks the last complete line.
// Writes beyond max are counted but discarded. It is safe for concurrent use.
type outputCapture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
	partial   strings.Builder
	lastLine  string
	tee       io.Writer
}

func newOutputCapture(maxSize int, tee io.Writer) *outputCapture {
	return &outputCapture{max: maxSize, tee: tee}
}

// Write implements io.Writer. It never returns an error so that the producer is drained.
func (o *outputCapture) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if room := o.max - o.buf.Len(); room > 0 {
		if len(p) > room {
			o.buf.Write(p[:room])
			o.truncated = true
		} else {
			o.buf.Write(p)
		}
	} else if len(p) > 0 {
		o.truncated = true
	}

	o.trackLines(string(p))

	if o.tee != nil {
		_, _ = o.tee.Write(p)
	}

	return len(p), nil
}

// trackLines must be called with the lock held. The pending partial line keeps at most
// max bytes, the tail of the line.
func (o *outputCapture) trackLines(data string) {
	o.partial.WriteString(data)
	combined := o.partial.String()

	if idx := strings.LastIndexByte(combined, '\n'); idx >= 0 {
		complete := strings.TrimRight(combined[:idx], "\r")
		if i := strings.LastIndexByte(complete, '\n'); i >= 0 {
			complete = complete[i+1:]
		}

		o.lastLine = strings.TrimRight(complete, "\r")
		combined = combined[idx+1:]
	}

	if o.max > 0 && len(combined) > o.max {
		combined = combined[len(combined)-o.max:]
	}

	o.partial.Reset()
	o.partial.WriteString(combined)
}

// LastLine returns the last complete line, or the pending partial line if no newline
// has been seen yet.
func (o *outputCapture) LastLine() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastLine == "" {
		return strings.TrimSpace(o.partial.String())
	}

	return o.lastLine
}

// String returns the captured output.
func (o *outputCapture) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.buf.String()
}

// Truncated reports whether output was discarded.
func (o *outputCapture) Truncated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.truncated
}
