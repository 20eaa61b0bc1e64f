// Package research turns the generation service's labelled plain-text replies
// into AcademicResponse records.
package research

import (
	"regexp"
	"strings"
)

// Source is a grounding citation attached to a reply.
type Source struct {
	URI   string `json:"uri" yaml:"uri"`
	Title string `json:"title" yaml:"title"`
}

// AcademicResponse is the structured form of one assistant reply.
type AcademicResponse struct {
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Summary       string   `json:"summary"`
	MainContent   string   `json:"mainContent"`
	AcademicNotes string   `json:"academicNotes"`
	Sources       []Source `json:"sources,omitempty"`
}

var titleRe = regexp.MustCompile(`\[(.*?)\]`)

// Parser extracts labelled sections. It is safe for concurrent use.
type Parser struct {
	locale Locale

	typeRe    *regexp.Regexp
	summaryRe *regexp.Regexp
	contentRe *regexp.Regexp
	notesRe   *regexp.Regexp
}

func NewParser(loc Locale) *Parser {
	l := loc.Labels
	return &Parser{
		locale:    loc,
		typeRe:    lineRe(l.RequestType),
		summaryRe: spanRe(l.Summary, l.MainContent),
		contentRe: spanRe(l.MainContent, l.Notes),
		notesRe:   spanRe(l.Notes, ""),
	}
}

func (p *Parser) Locale() Locale { return p.locale }

// Parse never fails: any section it cannot find gets its default.
func (p *Parser) Parse(raw string) AcademicResponse {
	out := AcademicResponse{
		Title: p.locale.DefaultTitle,
		Type:  p.locale.GeneralType,
	}

	if m := titleRe.FindStringSubmatch(raw); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			out.Title = t
		}
	}
	if t := strings.ToLower(strings.TrimSpace(capture(p.typeRe, raw))); t != "" {
		out.Type = t
	}
	out.Summary = strings.TrimSpace(capture(p.summaryRe, raw))
	out.MainContent = strings.TrimSpace(capture(p.contentRe, raw))
	out.AcademicNotes = strings.TrimSpace(capture(p.notesRe, raw))
	return out
}

func capture(re *regexp.Regexp, s string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// lineRe captures the rest of the line after label.
func lineRe(label string) *regexp.Regexp {
	if strings.TrimSpace(label) == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `[ \t]*([^\r\n]*)`)
}

// spanRe captures from label up to the first next label or the end of text.
func spanRe(label, next string) *regexp.Regexp {
	if strings.TrimSpace(label) == "" {
		return nil
	}
	stop := `$`
	if strings.TrimSpace(next) != "" {
		stop = `(?:` + regexp.QuoteMeta(next) + `|$)`
	}
	return regexp.MustCompile(`(?is)` + regexp.QuoteMeta(label) + `\s*(.*?)` + stop)
}
