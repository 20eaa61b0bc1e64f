// Package render formats sessions and academic responses for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/suPer8Hu/research-chat/internal/chat"
	"github.com/suPer8Hu/research-chat/internal/research"
)

type Styles struct {
	Title     lipgloss.Style
	Badge     lipgloss.Style
	Summary   lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Fallback  lipgloss.Style
	Muted     lipgloss.Style
	Active    lipgloss.Style
}

func DefaultStyles() Styles {
	accent := lipgloss.Color("#7C3AED")
	muted := lipgloss.Color("#6B7280")
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true),
		Badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(accent).
			Padding(0, 1),
		Summary: lipgloss.NewStyle().
			Italic(true),
		User: lipgloss.NewStyle().
			Bold(true),
		Assistant: lipgloss.NewStyle().
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(accent),
		Fallback: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DC2626")).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(muted),
		Active: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true),
	}
}

type Renderer struct {
	md     *glamour.TermRenderer
	styles Styles
	labels research.Labels
}

// New builds a renderer wrapping markdown at width columns. Plain output uses
// glamour's notty style and suits pipes and tests.
func New(loc research.Locale, width int, plain bool) (*Renderer, error) {
	if width <= 0 {
		width = 80
	}
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStylePath("notty")
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("render: markdown renderer: %w", err)
	}
	return &Renderer{md: md, styles: DefaultStyles(), labels: loc.Labels}, nil
}

// Message renders one thread entry.
func (r *Renderer) Message(m chat.Message) string {
	switch {
	case m.Role == chat.RoleUser:
		return r.styles.User.Render("> " + m.Content)
	case m.Parsed != nil:
		return r.styles.Assistant.Render(r.Academic(*m.Parsed))
	default:
		return r.styles.Fallback.Render(m.Content)
	}
}

// Academic renders a parsed reply: title, type badge, summary, then the main
// content and notes as markdown.
func (r *Renderer) Academic(a research.AcademicResponse) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render(a.Title))
	b.WriteString(" ")
	b.WriteString(r.styles.Badge.Render(a.Type))
	b.WriteString("\n")
	if a.Summary != "" {
		b.WriteString(r.styles.Summary.Render(a.Summary))
		b.WriteString("\n")
	}

	var md strings.Builder
	if a.MainContent != "" {
		md.WriteString(a.MainContent)
		md.WriteString("\n\n")
	}
	if a.AcademicNotes != "" {
		fmt.Fprintf(&md, "### %s\n\n%s\n\n", strings.TrimSuffix(r.labels.Notes, ":"), a.AcademicNotes)
	}
	if len(a.Sources) > 0 {
		md.WriteString("---\n\n")
		for _, s := range a.Sources {
			fmt.Fprintf(&md, "- [%s](%s)\n", s.Title, s.URI)
		}
	}
	if md.Len() > 0 {
		b.WriteString(r.markdown(md.String()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) markdown(src string) string {
	out, err := r.md.Render(src)
	if err != nil {
		return src
	}
	return out
}

// Thread renders a whole session.
func (r *Renderer) Thread(s chat.Session) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render(s.Title))
	b.WriteString("\n")
	b.WriteString(r.styles.Muted.Render(s.ID))
	b.WriteString("\n\n")
	for _, m := range s.Messages {
		b.WriteString(r.Message(m))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SessionList renders one line per session, marking the active one.
func (r *Renderer) SessionList(sessions []chat.Session, activeID string) string {
	var b strings.Builder
	for _, s := range sessions {
		marker := "  "
		title := s.Title
		if s.ID == activeID {
			marker = "* "
			title = r.styles.Active.Render(title)
		}
		fmt.Fprintf(&b, "%s%s  %s  %s\n",
			marker,
			r.styles.Muted.Render(s.ID),
			title,
			r.styles.Muted.Render(fmt.Sprintf("(%d messages, %s)", len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))),
		)
	}
	return b.String()
}
