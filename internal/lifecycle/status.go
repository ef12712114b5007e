// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	badStyle    = cellStyle.Foreground(lipgloss.Color("1"))
	goodStyle   = cellStyle.Foreground(lipgloss.Color("2"))
)

// PrintThreadStatus writes a table of tracked and abandoned workers to w.
func (s *Supervisor) PrintThreadStatus(w io.Writer) error {
	status := s.ThreadStatus()
	abandoned := s.Abandoned()

	for _, name := range abandoned {
		if _, ok := status[name]; ok {
			continue
		}

		if info, ok := s.ThreadInfo(name); ok {
			status[name] = info
		}
	}

	if len(status) == 0 {
		_, err := fmt.Fprintln(w, "no supervised workers")
		return err
	}

	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}

	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		info := status[name]
		phase := "-"

		if info.HasPhase {
			phase = fmt.Sprintf("%s (%d%%)", info.Phase, info.Progress.Percent)
		}

		rows = append(rows, []string{
			name,
			info.State.String(),
			fmt.Sprintf("%t", info.Alive),
			uptime(info.StartTime, time.Now()),
			phase,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("THREAD", "STATE", "ALIVE", "UPTIME", "CLEANUP").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			if col != 1 || row >= len(rows) {
				return cellStyle
			}

			switch rows[row][1] {
			case StateAbandoned.String(), StateError.String():
				return badStyle
			case StateRunning.String():
				return goodStyle
			default:
				return cellStyle
			}
		})

	_, err := fmt.Fprintln(w, t.Render())

	return err
}

func uptime(start, now time.Time) string {
	if start.IsZero() {
		return "-"
	}

	return now.Sub(start).Truncate(time.Millisecond).String()
}
