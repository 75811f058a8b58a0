// Package format renders workflow reports as plain text, JSON, terminal
// Markdown or HTML.
package format

import (
	"fmt"
	"strings"
)

// Kind is an output format.
type Kind string

const (
	KindText     Kind = "text"
	KindJSON     Kind = "json"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
)

// ParseKind validates a format name. Empty means text.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindText, nil
	case KindText, KindJSON, KindMarkdown, KindHTML:
		return k, nil
	case "md":
		return KindMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, markdown or html)", s)
	}
}

// Field is one labelled value.
type Field struct {
	Name  string
	Value string
}

// Section is a titled block of a report. Body is Markdown.
type Section struct {
	Heading string
	Body    string
	Items   []string
	Fields  []Field
}

// Report is the format-neutral view of a workflow result. Data is what the
// JSON format encodes.
type Report struct {
	Title    string
	Fields   []Field
	Sections []Section
	Data     any
}

// AddSection appends a section and returns it for filling in.
func (r *Report) AddSection(heading string) *Section {
	r.Sections = append(r.Sections, Section{Heading: heading})
	return &r.Sections[len(r.Sections)-1]
}

// Field appends a field to the section.
func (s *Section) Field(name, value string) *Section {
	s.Fields = append(s.Fields, Field{Name: name, Value: value})
	return s
}

// Markdown renders the report as Markdown.
func (r *Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", r.Title)
	writeFieldsMarkdown(&sb, r.Fields)
	for _, s := range r.Sections {
		fmt.Fprintf(&sb, "## %s\n\n", s.Heading)
		writeFieldsMarkdown(&sb, s.Fields)
		if s.Body != "" {
			sb.WriteString(strings.TrimSpace(s.Body))
			sb.WriteString("\n\n")
		}
		if len(s.Items) > 0 {
			for _, item := range s.Items {
				fmt.Fprintf(&sb, "- %s\n", item)
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeFieldsMarkdown(sb *strings.Builder, fields []Field) {
	if len(fields) == 0 {
		return
	}
	for _, f := range fields {
		fmt.Fprintf(sb, "- **%s:** %s\n", f.Name, f.Value)
	}
	sb.WriteString("\n")
}

// Text renders the report as plain text.
func (r *Report) Text() string {
	var sb strings.Builder
	sb.WriteString(r.Title + "\n")
	sb.WriteString(strings.Repeat("=", len([]rune(r.Title))) + "\n")
	writeFieldsText(&sb, r.Fields)
	for _, s := range r.Sections {
		sb.WriteString("\n" + s.Heading + "\n")
		sb.WriteString(strings.Repeat("-", len([]rune(s.Heading))) + "\n")
		writeFieldsText(&sb, s.Fields)
		if s.Body != "" {
			sb.WriteString(strings.TrimSpace(s.Body) + "\n")
		}
		for _, item := range s.Items {
			sb.WriteString("  * " + item + "\n")
		}
	}
	return sb.String()
}

func writeFieldsText(sb *strings.Builder, fields []Field) {
	for _, f := range fields {
		fmt.Fprintf(sb, "%s: %s\n", f.Name, f.Value)
	}
}
