package main

import (
	"context"
	"fmt"
	"os"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sdt-zeiss/prototype-ai/internal/config"
	"github.com/sdt-zeiss/prototype-ai/internal/embeddings"
	"github.com/sdt-zeiss/prototype-ai/internal/googleai"
	"github.com/sdt-zeiss/prototype-ai/internal/indexer"
	"github.com/sdt-zeiss/prototype-ai/internal/openai"
	"github.com/sdt-zeiss/prototype-ai/internal/prompts"
	"github.com/sdt-zeiss/prototype-ai/internal/rag"
	"github.com/sdt-zeiss/prototype-ai/internal/repository"
	"github.com/sdt-zeiss/prototype-ai/pkg/database"
)

var vectorKeys = []string{"DATABASE_URL", "OPENAI_API_KEY", "PGVECTOR_COLLECTION"}

type reindexCommentsCmd struct {
	Collection string `help:"Target collection. Defaults to PGVECTOR_COLLECTION."`
}

func (c *reindexCommentsCmd) Run(ctx context.Context) error {
	env, err := openVectorEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	n, err := env.indexer.PreprocessComments(ctx, c.Collection)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "indexed %d chunks\n", n)

	return nil
}

type askCmd struct {
	Question string `arg:"" help:"Question about the comments."`
	Format   string `help:"Answer format (text or html). Defaults to RAG_ANSWER_FORMAT." default:""`
}

func (c *askCmd) Run(ctx context.Context) error {
	env, err := openVectorEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	format := c.Format
	if format == "" {
		format = env.cfg.RAGAnswerFormat
	}

	catalogue, err := prompts.Load(env.cfg.PromptsFile)
	if err != nil {
		return err
	}

	tmpl, err := catalogue.RAG(format)
	if err != nil {
		return err
	}

	answerer, err := rag.NewAnswerer(env.indexer.VectorStore(""), env.embedder, env.openai, rag.Options{
		Model:    env.cfg.RAGChatModel,
		TopK:     env.cfg.RAGTopK,
		Template: tmpl,
	})
	if err != nil {
		return err
	}

	answer, err := answerer.Answer(ctx, c.Question)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, answer)

	return nil
}

// vectorEnv is the database and vendor wiring shared by the indexing commands.
type vectorEnv struct {
	cfg      *config.Config
	openai   *openai.Client
	embedder embeddings.Client
	indexer  *indexer.Indexer
	close    func()
}

func openVectorEnv(ctx context.Context) (*vectorEnv, error) {
	cfg, err := config.LoadRequiring(vectorKeys...)
	if err != nil {
		return nil, err
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithAfterConnect(pgxvec.RegisterTypes))
	if err != nil {
		return nil, err
	}

	commentsDB, err := repository.OpenCommentsDB(cfg.DatabaseURL)
	if err != nil {
		pool.Close()

		return nil, err
	}

	oa := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
		openai.WithRateLimit(cfg.LLMRateLimit),
		openai.WithOrganization(cfg.OpenAIOrganization),
		openai.WithProject(cfg.OpenAIProject),
	)

	var embedder embeddings.Client = oa

	if cfg.EmbeddingProvider == "google" {
		embedder, err = googleai.NewClient(ctx, cfg.GoogleAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			_ = commentsDB.Close()
			pool.Close()

			return nil, err
		}
	}

	ix := indexer.NewIndexer(
		repository.NewVectorsRepository(pool),
		embedder,
		repository.NewCommentsRepository(commentsDB),
		cfg.VectorCollection,
		nil,
	)

	return &vectorEnv{
		cfg:      cfg,
		openai:   oa,
		embedder: embedder,
		indexer:  ix,
		close: func() {
			_ = commentsDB.Close()
			pool.Close()
		},
	}, nil
}
