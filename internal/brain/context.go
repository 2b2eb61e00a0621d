package brain

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Brief is a parsed meeting brief. Operators write one per meeting as a
// small markdown file; its sections feed the classifier and responder
// prompts so the agent answers with the principal's actual positions
// instead of generic filler.
type Brief struct {
	RawText   string
	Title     string
	Date      string
	Attendees []string
	UserRole  string
	Agenda    []string

	// KeyContext lists facts the principal would know going in.
	KeyContext []string

	// Positions lists the stances the principal holds on agenda topics.
	Positions []string

	// Style describes how the principal communicates.
	Style []string

	// Avoid lists things the principal must never say.
	Avoid []string
}

var (
	titleRe   = regexp.MustCompile(`(?m)^#\s+Meeting:\s*(.+)`)
	dateRe    = regexp.MustCompile(`(?m)##\s+Date:\s*(.+)`)
	roleRe    = regexp.MustCompile(`—\s*(.+)`)
	itemRe    = regexp.MustCompile(`^[-*]\s+(.+)|^\d+\.\s+(.+)`)
	headingRe = regexp.MustCompile(`\n##\s+`)
)

// LoadBrief reads and parses a meeting brief markdown file. A missing file
// is not an error: the agent can run without a brief, just less informed,
// so the loader logs a warning and returns an empty Brief.
func LoadBrief(path string) *Brief {
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("meeting brief not readable", "path", path, "err", err)
		return &Brief{}
	}

	text := string(raw)
	b := &Brief{RawText: text}

	if m := titleRe.FindStringSubmatch(text); m != nil {
		b.Title = strings.TrimSpace(m[1])
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		b.Date = strings.TrimSpace(m[1])
	}

	b.Attendees = extractList(text, `##\s+Attendees:`)
	b.Agenda = extractList(text, `##\s+Agenda:`)
	b.KeyContext = extractList(text, `##\s+Your Key Context:`)
	b.Positions = extractList(text, `##\s+Your Positions:`)
	b.Style = extractList(text, `##\s+Communication Style:`)
	b.Avoid = extractList(text, `##\s+Things to Avoid:`)

	// The principal's role is tagged on their attendee line.
	for _, a := range b.Attendees {
		if strings.Contains(strings.ToLower(a), "(you)") {
			if m := roleRe.FindStringSubmatch(a); m != nil {
				b.UserRole = strings.TrimSpace(m[1])
			}
			break
		}
	}

	slog.Info("loaded meeting brief", "title", b.Title, "attendees", len(b.Attendees))
	return b
}

// extractList collects bullet or numbered list items under the markdown
// heading matched by headerPattern, up to the next "##" heading.
func extractList(text, headerPattern string) []string {
	loc := regexp.MustCompile(headerPattern).FindStringIndex(text)
	if loc == nil {
		return nil
	}

	section := text[loc[1]:]
	if next := headingRe.FindStringIndex(section); next != nil {
		section = section[:next[0]]
	}

	var items []string
	for _, line := range strings.Split(strings.TrimSpace(section), "\n") {
		if m := itemRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			item := m[1]
			if item == "" {
				item = m[2]
			}
			items = append(items, strings.TrimSpace(item))
		}
	}
	return items
}

// Format renders the brief as a concise block for LLM prompts. Empty
// sections are omitted.
func (b *Brief) Format() string {
	var parts []string

	if b.Title != "" {
		parts = append(parts, "Meeting: "+b.Title)
	}
	if b.Date != "" {
		parts = append(parts, "Date: "+b.Date)
	}
	if len(b.Attendees) > 0 {
		parts = append(parts, "Attendees: "+strings.Join(b.Attendees, ", "))
	}
	if b.UserRole != "" {
		parts = append(parts, "Your role: "+b.UserRole)
	}
	if len(b.KeyContext) > 0 {
		parts = append(parts, "Key context:\n"+bullets(b.KeyContext))
	}
	if len(b.Positions) > 0 {
		parts = append(parts, "Your positions:\n"+bullets(b.Positions))
	}
	if len(b.Style) > 0 {
		parts = append(parts, "Communication style:\n"+bullets(b.Style))
	}
	if len(b.Avoid) > 0 {
		parts = append(parts, "Things to avoid:\n"+bullets(b.Avoid))
	}
	return strings.Join(parts, "\n\n")
}

// StyleText returns the communication-style section as one string.
func (b *Brief) StyleText() string {
	return strings.Join(b.Style, "\n")
}

// AvoidText returns the avoid-list section as one string.
func (b *Brief) AvoidText() string {
	return strings.Join(b.Avoid, "\n")
}

func bullets(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s", it)
	}
	return sb.String()
}
