// Package topics turns a diarized transcript into persisted social media posts: embed, reduce,
// cluster, describe each topic, then have the LLM summarize it, write a post and illustrate it.
package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/embeddings"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
	"github.com/sdt-zeiss/prototype-ai/internal/prompts"
	vec "github.com/sdt-zeiss/prototype-ai/pkg/embeddings"
)

const (
	keywordCandidates  = 30
	representativeDocs = 3
	imageConcurrency   = 3
	imageSeparator     = " \n Image: "
)

// ErrMissingAuthor is returned by NewPipeline when no post author is configured.
var ErrMissingAuthor = errors.New("post author id is required")

// LLM is the chat and image model used by the pipeline.
type LLM interface {
	Chat(ctx context.Context, model, prompt string) (string, error)
	StructuredChat(ctx context.Context, model, prompt, schemaName string, out any) error
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ImagePublisher copies a temporary image URL into durable storage and returns its object ID.
type ImagePublisher interface {
	Republish(ctx context.Context, imageURL string) (string, error)
}

// PostStore persists generated posts atomically.
type PostStore interface {
	CreateMany(ctx context.Context, posts []models.Post) error
}

// Options configures a Pipeline. Zero values take the documented defaults.
type Options struct {
	ChatModel      string
	PostLimit      int   // default 10
	MinClusterSize int   // default 15
	Components     int   // default 5
	KeywordsCount  int   // default 10
	Seed           int64 // default 0; use 42 for the historical setting
	AuthorID       string
	Prompts        *prompts.Catalogue
	Metrics        observability.PipelineMetrics
	Now            func() time.Time
}

// Result is what one pipeline run produced.
type Result struct {
	Topics    []models.Topic        `json:"topics"`
	Summaries []models.TopicSummary `json:"summaries"`
	Posts     []models.Post         `json:"posts"`
}

// Pipeline runs the topic pipeline. It is safe for concurrent use.
type Pipeline struct {
	embedder  embeddings.Client
	llm       LLM
	images    ImagePublisher
	store     PostStore
	tokenizer *Tokenizer
	opts      Options
}

// NewPipeline creates a Pipeline. images may be nil, in which case posts carry no image ID.
func NewPipeline(embedder embeddings.Client, llm LLM, images ImagePublisher, store PostStore, opts Options) (*Pipeline, error) {
	if opts.AuthorID == "" {
		return nil, ErrMissingAuthor
	}

	if opts.PostLimit <= 0 {
		opts.PostLimit = 10
	}

	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = 15
	}

	if opts.Components <= 0 {
		opts.Components = 5
	}

	if opts.KeywordsCount <= 0 {
		opts.KeywordsCount = 10
	}

	if opts.Prompts == nil {
		opts.Prompts = prompts.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	tokenizer, err := NewTokenizer()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		embedder:  embedder,
		llm:       llm,
		images:    images,
		store:     store,
		tokenizer: tokenizer,
		opts:      opts,
	}, nil
}

// Run extracts topics from utterances and persists one post per topic, up to PostLimit.
// Embedding, clustering, LLM and store failures abort the run and nothing is written.
// Image failures only leave the affected post without an image.
func (p *Pipeline) Run(ctx context.Context, utterances []models.Utterance) (result *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "topics.Run", attribute.Int("utterances", len(utterances)))

	degraded := false

	defer func() {
		observability.EndSpan(span, err)
		p.recordRun(ctx, err, degraded)
	}()

	texts := documents(utterances)
	result = &Result{}

	if len(texts) == 0 {
		slog.InfoContext(ctx, "Transcript has no text, skipping topic pipeline")

		return result, nil
	}

	result.Topics, err = p.FindTopics(ctx, texts)
	if err != nil {
		return nil, err
	}

	result.Summaries, err = p.summarize(ctx, result.Topics)
	if err != nil {
		return nil, err
	}

	drafts, err := p.writePosts(ctx, result.Summaries)
	if err != nil {
		return nil, err
	}

	result.Posts, degraded, err = p.illustrate(ctx, drafts)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, result.Posts); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Topic pipeline finished",
		"utterances", len(texts),
		"topics", len(result.Topics),
		"posts", len(result.Posts),
		"degraded", degraded,
	)

	return result, nil
}

// documents returns the non-blank utterance texts in order.
func documents(utterances []models.Utterance) []string {
	out := make([]string, 0, len(utterances))

	for _, u := range utterances {
		if text := strings.TrimSpace(u.Text); text != "" {
			out = append(out, text)
		}
	}

	return out
}

// FindTopics embeds, reduces and clusters texts and describes each topic. The outlier topic, when
// present, comes after the regular topics.
func (p *Pipeline) FindTopics(ctx context.Context, texts []string) ([]models.Topic, error) {
	var (
		full     [][]float64
		reduced  [][]float64
		clusters *Clustering
	)

	err := p.stage(ctx, "embed", func(ctx context.Context) error {
		raw, err := p.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed utterances: %w", err)
		}

		full = make([][]float64, len(raw))
		for i, v := range raw {
			v = append([]float32(nil), v...)
			vec.NormalizeL2(v)
			full[i] = vec.ToFloat64(v)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "reduce", func(context.Context) error {
		out, err := Reduce(full, p.opts.Components)
		reduced = out

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reduce embeddings: %w", err)
	}

	_ = p.stage(ctx, "cluster", func(context.Context) error {
		clusters = Cluster(reduced, ClusterOptions{MinClusterSize: p.opts.MinClusterSize, Seed: p.opts.Seed})

		return nil
	})

	var topics []models.Topic

	err = p.stage(ctx, "keywords", func(ctx context.Context) error {
		out, err := p.describe(ctx, texts, full, reduced, clusters)
		topics = out

		return err
	})
	if err != nil {
		return nil, err
	}

	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordTopicsFound(ctx, clusters.NumTopics())
	}

	return topics, nil
}

// describe builds keywords, label and representative documents for every topic.
func (p *Pipeline) describe(ctx context.Context, texts []string, full, reduced [][]float64, c *Clustering) ([]models.Topic, error) {
	ids := make([]int, 0, c.NumTopics()+1)
	for id := range c.NumTopics() {
		ids = append(ids, id)
	}

	members := make(map[int][]int, len(ids)+1)
	for i, label := range c.Labels {
		members[label] = append(members[label], i)
	}

	if len(members[models.OutlierTopicID]) > 0 {
		ids = append(ids, models.OutlierTopicID)
	}

	classes := make([][]string, len(ids))
	for i, id := range ids {
		for _, m := range members[id] {
			classes[i] = append(classes[i], p.tokenizer.Tokens(texts[m])...)
		}
	}

	scores := ClassTFIDF(classes)
	candidates := make([][]string, len(ids))
	unique := make([]string, 0)
	seen := make(map[string]bool)

	for i := range ids {
		candidates[i] = TopTerms(scores[i], keywordCandidates)

		for _, term := range candidates[i] {
			if !seen[term] {
				seen[term] = true
				unique = append(unique, term)
			}
		}
	}

	termVectors := make(map[string][]float64, len(unique))

	if len(unique) > 0 {
		raw, err := p.embedder.CreateEmbeddings(ctx, unique)
		if err != nil {
			return nil, fmt.Errorf("embed keyword candidates: %w", err)
		}

		for i, term := range unique {
			termVectors[term] = vec.ToFloat64(raw[i])
		}
	}

	topics := make([]models.Topic, len(ids))

	for i, id := range ids {
		centroid := meanOf(reduced, members[id])
		keywords := RerankBySimilarity(candidates[i], termVectors, meanOf(full, members[id]), p.opts.KeywordsCount)

		topics[i] = models.Topic{
			ID:                 id,
			Label:              TopicLabel(id, keywords),
			Keywords:           keywords,
			RepresentativeDocs: RepresentativeDocs(texts, reduced, members[id], centroid, representativeDocs),
			Size:               len(members[id]),
			Centroid:           centroid,
		}
	}

	return topics, nil
}

func meanOf(points [][]float64, idx []int) []float64 {
	if len(idx) == 0 || len(points) == 0 {
		return nil
	}

	out := make([]float64, len(points[idx[0]]))
	for _, i := range idx {
		for d, v := range points[i] {
			out[d] += v
		}
	}

	for d := range out {
		out[d] /= float64(len(idx))
	}

	return out
}

type summaryOutput struct {
	Label   string `json:"label" jsonschema:"description=Short descriptive topic label of at most 5 words"`
	Summary string `json:"summary" jsonschema:"description=One paragraph summary of the topic"`
}

type postOutput struct {
	Title string `json:"title" jsonschema:"description=Post title of at most 5 words"`
	Post  string `json:"post" jsonschema:"description=Post caption ending in an open question"`
}

// summarize asks the LLM for a label and summary per topic. Topics whose output cannot be read
// are skipped.
func (p *Pipeline) summarize(ctx context.Context, topics []models.Topic) ([]models.TopicSummary, error) {
	summaries := make([]models.TopicSummary, 0, len(topics))

	err := p.stage(ctx, "summarize", func(ctx context.Context) error {
		for _, topic := range topics {
			prompt, err := prompts.Render(p.opts.Prompts.TopicSummary, map[string]any{
				"documents": "\n- " + strings.Join(topic.RepresentativeDocs, "\n- "),
				"keywords":  strings.Join(topic.Keywords, ", "),
			})
			if err != nil {
				return err
			}

			var out summaryOutput

			label, summary := "", ""

			raw, legacy, err := p.complete(ctx, prompt, "topic_summary", &out)

			switch {
			case err != nil:
				return fmt.Errorf("summarize topic %d: %w", topic.ID, err)
			case legacy:
				label, summary, err = ParseSummary(raw)
				if err != nil {
					slog.WarnContext(ctx, "Skipping topic with unreadable summary", "topic_id", topic.ID, "error", err)

					continue
				}
			default:
				label, summary = strings.TrimSpace(out.Label), strings.TrimSpace(out.Summary)
			}

			if summary == "" {
				slog.WarnContext(ctx, "Skipping topic with empty summary", "topic_id", topic.ID)

				continue
			}

			if label == "" {
				label = topic.Label
			}

			summaries = append(summaries, models.TopicSummary{TopicID: topic.ID, Label: label, Summary: summary})
		}

		return nil
	})

	return summaries, err
}

// complete fills out from a JSON schema answer. When the model answers with something else, or
// does not support JSON schemas at all, it returns the plain text answer with legacy set so the
// caller can parse the prompt's text format instead.
func (p *Pipeline) complete(ctx context.Context, prompt, schemaName string, out any) (raw string, legacy bool, err error) {
	err = p.llm.StructuredChat(ctx, p.opts.ChatModel, prompt, schemaName, out)

	var malformed *apperrors.MalformedOutputError

	switch {
	case err == nil:
		return "", false, nil
	case errors.As(err, &malformed):
		return malformed.Output, true, nil
	case errors.Is(err, apperrors.ErrStructuredOutputUnsupported):
		slog.DebugContext(ctx, "Model rejected JSON schema, using plain completion", "model", p.opts.ChatModel, "schema", schemaName)

		raw, err = p.llm.Chat(ctx, p.opts.ChatModel, prompt)
		if err != nil {
			return "", false, err
		}

		return raw, true, nil
	default:
		return "", false, err
	}
}

// writePosts converts summaries to drafts in order until PostLimit drafts exist.
// A post without the [SEP] separator is skipped with a warning.
func (p *Pipeline) writePosts(ctx context.Context, summaries []models.TopicSummary) ([]models.DraftPost, error) {
	drafts := make([]models.DraftPost, 0, min(len(summaries), p.opts.PostLimit))

	err := p.stage(ctx, "write_post", func(ctx context.Context) error {
		for _, s := range summaries {
			if len(drafts) == p.opts.PostLimit {
				break
			}

			prompt, err := prompts.Render(p.opts.Prompts.PostConversion, map[string]any{
				"label":   s.Label,
				"summary": s.Summary,
			})
			if err != nil {
				return err
			}

			var out postOutput

			title, body := "", ""

			raw, legacy, err := p.complete(ctx, prompt, "post", &out)

			switch {
			case err != nil:
				return fmt.Errorf("write post for topic %d: %w", s.TopicID, err)
			case legacy:
				title, body, err = ParsePost(raw)
				if err != nil {
					slog.WarnContext(ctx, "Skipping malformed post", "topic_id", s.TopicID, "error", err)

					continue
				}
			default:
				title = strings.TrimSpace(titlePrefix.ReplaceAllString(out.Title, ""))
				body = strings.TrimSpace(postPrefix.ReplaceAllString(out.Post, ""))
			}

			if title == "" || body == "" {
				slog.WarnContext(ctx, "Skipping post with empty title or body", "topic_id", s.TopicID)

				continue
			}

			drafts = append(drafts, models.DraftPost{TopicID: s.TopicID, Label: s.Label, Title: PostTitle(title), Body: body})
		}

		return nil
	})

	return drafts, err
}

// illustrate generates and republishes an image per draft, a few at a time, and assembles posts.
// The second return value reports whether any image was lost.
func (p *Pipeline) illustrate(ctx context.Context, drafts []models.DraftPost) ([]models.Post, bool, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "topics.image", attribute.Int("drafts", len(drafts)))

	var (
		mu       sync.Mutex
		degraded bool
	)

	now := p.opts.Now().UTC().Truncate(time.Millisecond)
	posts := make([]models.Post, len(drafts))

	var g errgroup.Group
	g.SetLimit(imageConcurrency)

	for i, d := range drafts {
		g.Go(func() error {
			url, imageID, ok := p.image(ctx, d)
			if !ok {
				mu.Lock()
				degraded = true
				mu.Unlock()
			}

			posts[i] = models.Post{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
				Title:     d.Title,
				Content:   postContent(d.Body, url),
				Type:      models.PostTypeStory,
				AuthorID:  p.opts.AuthorID,
				Status:    models.PostStatusAIGeneratedUnreviewed,
				ImageID:   imageID,
				ImageURL:  url,
			}

			return nil
		})
	}

	_ = g.Wait()

	err := ctx.Err()
	observability.EndSpan(span, err)

	status := "success"

	switch {
	case err != nil:
		status = "error"
	case degraded:
		status = "degraded"
	}

	p.recordStage(ctx, "image", status, time.Since(start))

	if err != nil {
		return nil, degraded, err
	}

	return posts, degraded, nil
}

// postContent appends the image link to body when there is one.
func postContent(body, imageURL string) string {
	if imageURL == "" {
		return body
	}

	return body + imageSeparator + imageURL
}

// image returns the generated URL and stored object ID for d. ok is false when either step failed.
func (p *Pipeline) image(ctx context.Context, d models.DraftPost) (url, imageID string, ok bool) {
	prompt, err := prompts.Render(p.opts.Prompts.Image, map[string]any{"title": d.Title, "content": d.Body})
	if err != nil {
		slog.WarnContext(ctx, "Image prompt failed", "topic_id", d.TopicID, "error", err)

		return "", "", false
	}

	url, err = p.llm.GenerateImage(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "Image generation failed", "topic_id", d.TopicID, "error", err)

		return "", "", false
	}

	if p.images == nil {
		return url, "", true
	}

	imageID, err = p.images.Republish(ctx, url)
	if err != nil {
		slog.WarnContext(ctx, "Image upload failed", "topic_id", d.TopicID, "error", err)

		return url, "", false
	}

	return url, imageID, true
}

func (p *Pipeline) persist(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	err := p.stage(ctx, "persist", func(ctx context.Context) error {
		return p.store.CreateMany(ctx, posts)
	})
	if err != nil {
		return fmt.Errorf("persist posts: %w", err)
	}

	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordPostsGenerated(ctx, len(posts))
	}

	return nil
}

// stage runs fn inside a span and records its duration and outcome.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := observability.StartSpan(observability.WithStage(ctx, name), "topics."+name)

	err := fn(ctx)
	observability.EndSpan(span, err)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.recordStage(ctx, name, status, time.Since(start))

	return err
}

func (p *Pipeline) recordStage(ctx context.Context, name, status string, d time.Duration) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordStage(ctx, name, status, d)
	}
}

func (p *Pipeline) recordRun(ctx context.Context, err error, degraded bool) {
	if p.opts.Metrics == nil {
		return
	}

	switch {
	case err != nil:
		p.opts.Metrics.RecordRun(ctx, "error")
	case degraded:
		p.opts.Metrics.RecordRun(ctx, "degraded")
	default:
		p.opts.Metrics.RecordRun(ctx, "success")
	}
}
