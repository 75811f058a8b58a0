package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const defaultWidth = 100

// Options tune terminal Markdown rendering.
type Options struct {
	// Width wraps rendered Markdown; zero uses 100.
	Width int
	// Style is a glamour style name ("dark", "light", "notty", ...); empty
	// detects the terminal background.
	Style string
}

// Write renders r in kind to w.
func Write(w io.Writer, r *Report, kind Kind, opts Options) error {
	switch kind {
	case KindText, "":
		_, err := io.WriteString(w, r.Text())
		return err
	case KindJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.Data)
	case KindMarkdown:
		out, err := Terminal(r.Markdown(), opts)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case KindHTML:
		return HTML(w, r)
	default:
		return fmt.Errorf("unknown format %q", kind)
	}
}

// Terminal renders Markdown for a terminal with glamour.
func Terminal(markdown string, opts Options) (string, error) {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render(markdown)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML writes r as a standalone HTML page.
func HTML(w io.Writer, r *Report) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(r.Markdown()), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	_, err := fmt.Fprintf(w, htmlPage, html.EscapeString(r.Title), body.String())
	return err
}

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:system-ui,sans-serif;max-width:46rem;margin:2rem auto;line-height:1.5;padding:0 1rem}</style>
</head>
<body>
%s</body>
</html>
`
