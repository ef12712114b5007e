// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)

	statusStyles = map[executor.Status]lipgloss.Style{
		executor.StatusPass:          cellStyle.Foreground(lipgloss.Color("2")),
		executor.StatusFail:          cellStyle.Foreground(lipgloss.Color("1")),
		executor.StatusExecutionFail: cellStyle.Foreground(lipgloss.Color("1")),
		executor.StatusError:         cellStyle.Foreground(lipgloss.Color("1")),
		executor.StatusCancelled:     cellStyle.Foreground(lipgloss.Color("3")),
		executor.StatusSkipped:       cellStyle.Foreground(lipgloss.Color("8")),
	}
)

const statusCol = 2

// Outcome is a one word description of how the run stopped.
func (s Summary) Outcome() string {
	switch {
	case s.Cancelled:
		return "cancelled"
	case s.EndedByCommand:
		return "ended by command"
	case s.CompletedNormally():
		return "completed"
	default:
		return "stopped"
	}
}

// Print writes a results table followed by the statistics to w.
func (s Summary) Print(w io.Writer) error {
	title := fmt.Sprintf("%s %q: %s, %d/%d iterations",
		s.Strategy, s.Experiment, s.Outcome(), s.CompletedIterations, s.Planned)

	if _, err := fmt.Fprintln(w, titleStyle.Render(title)); err != nil {
		return err
	}

	if len(s.Results) > 0 {
		rows := make([][]string, 0, len(s.Results))
		statuses := make([]executor.Status, 0, len(s.Results))

		for _, r := range s.Results {
			rows = append(rows, []string{
				fmt.Sprintf("%d", r.Iteration),
				r.Label,
				string(r.Status),
				r.Duration.Truncate(time.Millisecond).String(),
				r.Scratchpad,
			})
			statuses = append(statuses, r.Status)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("#", "POINT", "STATUS", "DURATION", "DETAIL").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}

				if col == statusCol && row >= 0 && row < len(statuses) {
					if st, ok := statusStyles[statuses[row]]; ok {
						return st
					}
				}

				return cellStyle
			})

		if _, err := fmt.Fprintln(w, t.Render()); err != nil {
			return err
		}
	}

	st := s.Stats

	_, err := fmt.Fprintf(w, "pass %d, fail %d, cancelled %d, execution failures %d, skipped %d, other %d\n"+
		"valid %d, pass rate %.1f%%, fail rate %.1f%%\n",
		st.Pass, st.Fail, st.Cancelled, st.ExecutionFail, st.Skipped, st.Other,
		st.Valid, st.PassRate, st.FailRate)

	return err
}
