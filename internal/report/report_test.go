package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

func TestEntryFor(t *testing.T) {
	entry := EntryFor(models.Post{
		Title:   "Quiet Rooms",
		Content: "Where do you go to think? \n Image: https://images.example/1.png",
		Status:  models.PostStatusAIGeneratedUnreviewed,
	})

	assert.Equal(t, "Where do you go to think?", entry.Caption)
	assert.Equal(t, "https://images.example/1.png", entry.ImageURL)

	entry = EntryFor(models.Post{Content: "No image here \n Image: "})
	assert.Equal(t, "No image here", entry.Caption)
	assert.Empty(t, entry.ImageURL)
}

func TestRender_EscapesContent(t *testing.T) {
	var b strings.Builder

	err := Render(&b, "", []models.Post{{
		Title:     "<script>alert(1)</script>",
		Content:   "Caption \n Image: https://images.example/2.png",
		CreatedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	html := b.String()
	assert.Contains(t, html, "<title>Social Media Posts</title>")
	assert.Contains(t, html, `src="https://images.example/2.png"`)
	assert.Contains(t, html, "2024-06-01 12:30")
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRender_NoPosts(t *testing.T) {
	var b strings.Builder

	require.NoError(t, Render(&b, "Latest", nil))
	assert.Contains(t, b.String(), "No posts yet.")
	assert.Contains(t, b.String(), "<title>Latest</title>")
}
