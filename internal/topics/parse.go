package topics

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
)

// PostSeparator divides title and caption in the legacy post format.
const PostSeparator = "[SEP]"

var (
	// ErrMalformedPost is returned when post output lacks the separator or one of its parts.
	ErrMalformedPost = errors.New("post output is malformed")
	// ErrMalformedSummary is returned when summary output has no summary part.
	ErrMalformedSummary = errors.New("summary output is malformed")

	titlePrefix   = regexp.MustCompile(`(?i)^\s*title\s*:\s*`)
	postPrefix    = regexp.MustCompile(`(?i)^\s*post\s*:\s*`)
	summaryFormat = regexp.MustCompile(`(?is)topic\s*:\s*(.*?)\s*summary\s*:\s*(.*)`)
)

// ParsePost splits "Title : <title> [SEP] Post : <caption>" into its parts.
// Text after a second separator is kept in the caption.
func ParsePost(raw string) (title, body string, err error) {
	head, tail, found := strings.Cut(raw, PostSeparator)
	if !found {
		return "", "", malformedPost("missing "+PostSeparator, raw)
	}

	title = strings.TrimSpace(titlePrefix.ReplaceAllString(strings.TrimSpace(head), ""))
	body = strings.TrimSpace(postPrefix.ReplaceAllString(strings.TrimSpace(tail), ""))

	if title == "" || body == "" {
		return "", "", malformedPost("empty title or caption", raw)
	}

	return title, body, nil
}

func malformedPost(reason, raw string) error {
	return fmt.Errorf("%w: %w", ErrMalformedPost, apperrors.NewMalformedOutputError(reason, raw))
}

// ParseSummary reads "topic: <label>\nsummary : <summary>".
// Output without a "topic:" line is taken whole as the summary with an empty label.
func ParseSummary(raw string) (label, summary string, err error) {
	if m := summaryFormat.FindStringSubmatch(raw); m != nil {
		label, summary = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	} else {
		summary = strings.TrimSpace(raw)
	}

	if summary == "" {
		return "", "", fmt.Errorf("%w: %w", ErrMalformedSummary, apperrors.NewMalformedOutputError("empty summary", raw))
	}

	return label, summary, nil
}

// PostTitle derives the stored title from a topic label: the text after the last ": ".
func PostTitle(label string) string {
	if i := strings.LastIndex(label, ": "); i >= 0 {
		return strings.TrimSpace(label[i+2:])
	}

	return strings.TrimSpace(label)
}
