// Package ui holds the terminal styling shared by the CLI commands.
//
// [Palette] wraps a handful of [lipgloss] styles. Output written to a non-terminal is left
// unstyled by lipgloss, so command output stays greppable when piped.
package ui
