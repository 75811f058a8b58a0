package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPost(t *testing.T) {
	post, err := LoadPost(filepath.Join("testdata", "post.json"))
	require.NoError(t, err)
	assert.Equal(t, "AI in Healthcare: Promise and Pitfalls", post.Title)
	assert.Equal(t, 34, post.WordCount())
	assert.Contains(t, post.String(), "Title: AI in Healthcare")
	assert.Contains(t, post.String(), "Content: Artificial intelligence")
}

func TestLoadPost_Missing(t *testing.T) {
	_, err := LoadPost(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestParsePost(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"valid", `{"title":" T ","content":" body "}`, ""},
		{"missing title", `{"content":"body"}`, "title is required"},
		{"blank content", `{"title":"T","content":"   "}`, "content is required"},
		{"not json", `title: T`, "failed to decode post"},
		{"yaml document", "title: T\ncontent: body\n", "failed to decode post"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, err := ParsePost([]byte(tt.data))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "T", post.Title)
			assert.Equal(t, "body", post.Content)
		})
	}
}
