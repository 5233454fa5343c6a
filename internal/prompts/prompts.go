// Package prompts holds the LLM prompt catalogue: embedded defaults, optionally overridden from a YAML file.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/prompts"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrUnknownFormat is returned by RAG for an answer format other than text or html.
var ErrUnknownFormat = errors.New("unknown answer format")

// Catalogue is the set of prompt templates used by the answerer and the topic pipeline.
type Catalogue struct {
	RAGText        string `yaml:"rag_text"`
	RAGHTML        string `yaml:"rag_html"`
	TopicSummary   string `yaml:"topic_summary"`
	PostConversion string `yaml:"post_conversion"`
	Image          string `yaml:"image"`
}

// Default returns the embedded catalogue.
func Default() *Catalogue {
	var c Catalogue
	if err := yaml.Unmarshal(defaultsYAML, &c); err != nil {
		panic(fmt.Sprintf("prompts: embedded defaults are invalid: %v", err))
	}

	return &c
}

// Load returns the embedded catalogue with any non-empty entries of the YAML file at path applied on top.
// An empty path returns the defaults.
func Load(path string) (*Catalogue, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	var override Catalogue
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	c.merge(&override)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalogue) merge(o *Catalogue) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	set(&c.RAGText, o.RAGText)
	set(&c.RAGHTML, o.RAGHTML)
	set(&c.TopicSummary, o.TopicSummary)
	set(&c.PostConversion, o.PostConversion)
	set(&c.Image, o.Image)
}

// Validate renders every template with placeholder values so syntax errors surface at startup.
func (c *Catalogue) Validate() error {
	checks := []struct {
		name string
		tmpl string
		vars []string
	}{
		{"rag_text", c.RAGText, []string{"context", "question"}},
		{"rag_html", c.RAGHTML, []string{"context", "question"}},
		{"topic_summary", c.TopicSummary, []string{"documents", "keywords"}},
		{"post_conversion", c.PostConversion, []string{"label", "summary"}},
		{"image", c.Image, []string{"title", "content"}},
	}

	for _, check := range checks {
		values := make(map[string]any, len(check.vars))
		for _, v := range check.vars {
			values[v] = "x"
		}

		if _, err := Render(check.tmpl, values); err != nil {
			return fmt.Errorf("prompt %s: %w", check.name, err)
		}
	}

	return nil
}

// RAG returns the answer template for format ("text" or "html").
func (c *Catalogue) RAG(format string) (string, error) {
	switch format {
	case "", "text":
		return c.RAGText, nil
	case "html":
		return c.RAGHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Render fills tmpl with values. Every key in values is declared as an input variable.
func Render(tmpl string, values map[string]any) (string, error) {
	vars := make([]string, 0, len(values))
	for k := range values {
		vars = append(vars, k)
	}

	out, err := prompts.NewPromptTemplate(tmpl, vars).Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	return out, nil
}
