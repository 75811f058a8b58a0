package format

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := &Report{
		Title:  "Pipeline result",
		Fields: []Field{{Name: "State", Value: "DONE"}},
		Data:   map[string]any{"summary": "Models read scans."},
	}
	r.AddSection("Summary").Body = "Models read scans."
	r.AddSection("Key points").Items = []string{"scans", "risk"}
	r.AddSection("Email").Field("Subject", "News")
	return r
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"", KindText},
		{"JSON", KindJSON},
		{"md", KindMarkdown},
		{"html", KindHTML},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseKind("pdf")
	assert.Error(t, err)
}

func TestReport_Markdown(t *testing.T) {
	assert.Equal(t, "# Pipeline result\n\n"+
		"- **State:** DONE\n\n"+
		"## Summary\n\nModels read scans.\n\n"+
		"## Key points\n\n- scans\n- risk\n\n"+
		"## Email\n\n- **Subject:** News\n", sampleReport().Markdown())
}

func TestReport_Text(t *testing.T) {
	assert.Equal(t, "Pipeline result\n===============\n"+
		"State: DONE\n"+
		"\nSummary\n-------\nModels read scans.\n"+
		"\nKey points\n----------\n  * scans\n  * risk\n"+
		"\nEmail\n-----\nSubject: News\n", sampleReport().Text())
}

func TestWrite(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sampleReport(), KindJSON, Options{}))
		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "Models read scans.", got["summary"])
	})

	t.Run("html", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sampleReport(), KindHTML, Options{}))
		out := buf.String()
		assert.Contains(t, out, "<title>Pipeline result</title>")
		assert.Contains(t, out, "<h2>Key points</h2>")
		assert.Contains(t, out, "<li>scans</li>")
		assert.Contains(t, out, "<strong>Subject:</strong>")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sampleReport(), KindMarkdown, Options{Style: "notty", Width: 60}))
		assert.Contains(t, buf.String(), "Models read scans.")
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, Write(&bytes.Buffer{}, sampleReport(), Kind("pdf"), Options{}))
	})
}
