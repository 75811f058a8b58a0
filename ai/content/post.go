// Package content loads the source blog post that the workflows repurpose.
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Post is a blog post with a title and a body.
type Post struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// LoadPost reads a JSON post from path.
func LoadPost(path string) (*Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read post %s", path)
	}
	post, err := ParsePost(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid post %s", path)
	}
	return post, nil
}

// ParsePost decodes and validates a JSON post.
func ParsePost(data []byte) (*Post, error) {
	var post Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, errors.Wrap(err, "failed to decode post")
	}
	post.Title = strings.TrimSpace(post.Title)
	post.Content = strings.TrimSpace(post.Content)
	if err := post.Validate(); err != nil {
		return nil, err
	}
	return &post, nil
}

// Validate checks that both fields are present.
func (p *Post) Validate() error {
	if p.Title == "" {
		return errors.New("post title is required")
	}
	if p.Content == "" {
		return errors.New("post content is required")
	}
	return nil
}

// String renders the post the way prompts embed it.
func (p *Post) String() string {
	return fmt.Sprintf("Title: %s\n\nContent: %s", p.Title, p.Content)
}

// WordCount returns the number of whitespace-separated words in the body.
func (p *Post) WordCount() int {
	return len(strings.Fields(p.Content))
}
