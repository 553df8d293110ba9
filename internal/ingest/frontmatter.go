package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one source document ready for chunking.
type Document struct {
	ID      string
	Title   string
	URL     string
	Type    string
	Country string
	Year    int
	Topic   string
	Body    string
}

// frontMatter is the YAML header an ingested file may carry.
type frontMatter struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	URL     string `yaml:"url"`
	Type    string `yaml:"type"`
	Country string `yaml:"country"`
	Year    int    `yaml:"year"`
	Topic   string `yaml:"topic"`
}

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	slugPattern    = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseDocument splits an optional YAML front-matter header off raw and
// returns the resulting document. fallbackID is used when the header does
// not declare an id; a missing title falls back to the first markdown
// heading, then to the id.
func ParseDocument(raw, fallbackID string) (Document, error) {
	var fm frontMatter
	body := raw

	trimmed := strings.TrimLeft(raw, "\n")
	if strings.HasPrefix(trimmed, "---\n") {
		rest := trimmed[len("---\n"):]
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return Document{}, fmt.Errorf("unterminated front matter")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
			return Document{}, fmt.Errorf("parse front matter: %w", err)
		}
		body = rest[end+len("\n---"):]
		body = strings.TrimPrefix(body, "\n")
	}

	doc := Document{
		ID:      fm.ID,
		Title:   strings.TrimSpace(fm.Title),
		URL:     strings.TrimSpace(fm.URL),
		Type:    strings.TrimSpace(fm.Type),
		Country: strings.TrimSpace(fm.Country),
		Year:    fm.Year,
		Topic:   strings.TrimSpace(fm.Topic),
		Body:    strings.TrimSpace(body),
	}
	if doc.ID == "" {
		doc.ID = Slug(fallbackID)
	}
	if doc.ID == "" {
		return Document{}, fmt.Errorf("document has no id")
	}
	if doc.Body == "" {
		return Document{}, fmt.Errorf("document %s has no body", doc.ID)
	}
	if doc.Title == "" {
		if m := headingPattern.FindStringSubmatch(doc.Body); m != nil {
			doc.Title = strings.TrimSpace(m[1])
		} else {
			doc.Title = doc.ID
		}
	}
	if doc.Type == "" {
		doc.Type = "document"
	}
	return doc, nil
}

// Slug normalizes a filename or title into a document id.
func Slug(s string) string {
	s = strings.TrimSuffix(filepath.Base(s), filepath.Ext(s))
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
