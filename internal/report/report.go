// Package report renders posts as a standalone HTML page for reviewing pipeline output.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// imageMarker separates the caption from the image URL in stored post content.
const imageMarker = "\n Image:"

//go:embed report.html
var pageTemplate string

var page = template.Must(template.New("report").Parse(pageTemplate))

// Entry is one rendered post.
type Entry struct {
	Title     string
	Caption   string
	ImageURL  string
	Status    string
	CreatedAt time.Time
}

// EntryFor splits stored post content into caption and image URL.
// A post that still carries its vendor ImageURL uses it in preference to the one in the content.
func EntryFor(p models.Post) Entry {
	caption, url, _ := strings.Cut(p.Content, imageMarker)

	url = strings.TrimSpace(url)
	if p.ImageURL != "" {
		url = p.ImageURL
	}

	return Entry{
		Title:     p.Title,
		Caption:   strings.TrimSpace(caption),
		ImageURL:  url,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

// Render writes the report page for posts to w.
func Render(w io.Writer, title string, posts []models.Post) error {
	entries := make([]Entry, len(posts))
	for i, p := range posts {
		entries[i] = EntryFor(p)
	}

	if title == "" {
		title = "Social Media Posts"
	}

	data := struct {
		Title   string
		Entries []Entry
	}{Title: title, Entries: entries}

	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}
