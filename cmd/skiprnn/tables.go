// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	highlightRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
				Bold(true).
				PaddingLeft(1).PaddingRight(1)
)

// highlightTable is a table where individual rows can be highlighted: used for the
// timesteps where no example updated its state.
type highlightTable struct {
	Table       *lgtable.Table
	count       int
	highlighted map[int]bool
}

// Row appends a row, highlighted or not.
func (t *highlightTable) Row(highlight bool, row ...string) {
	if highlight {
		t.highlighted[t.count] = true
	}
	t.Table.Row(row...)
	t.count++
}

func newHighlightTable(alignments ...lipgloss.Position) *highlightTable {
	t := &highlightTable{highlighted: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			switch {
			case t.highlighted[row]:
				s = highlightRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	return t
}

// newPlainTable returns a table with no highlighting, for key/value summaries.
func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return newHighlightTable(alignments...).Table
}
