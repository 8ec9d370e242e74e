package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/playlistbot/internal/models"
)

// DefaultPalette uses Spotify green for success.
var DefaultPalette = NewPalette("#7D56F4", "#1DB954", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

// NewPalette builds a palette from foreground colors for titles, success, errors, warnings and help text.
func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Outcome renders s in the color matching how a share ended.
func (p *Palette) Outcome(o models.Outcome, s string) string {
	switch o {
	case models.OutcomeAdded:
		return p.OK(s)
	case models.OutcomeAlreadyPresent:
		return p.Help(s)
	case models.OutcomePartial:
		return p.Warn(s)
	case models.OutcomeFailed, models.OutcomeUnsupported:
		return p.Err(s)
	default:
		return s
	}
}

// Symbol is the status mark printed before a share's reply.
func Symbol(o models.Outcome) string {
	switch o {
	case models.OutcomeAdded:
		return "✓"
	case models.OutcomeAlreadyPresent:
		return "="
	case models.OutcomePartial:
		return "⚠"
	default:
		return "✗"
	}
}
