package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sdt-zeiss/prototype-ai/internal/api/handlers"
	"github.com/sdt-zeiss/prototype-ai/internal/api/middleware"
	"github.com/sdt-zeiss/prototype-ai/internal/config"
	"github.com/sdt-zeiss/prototype-ai/internal/embeddings"
	"github.com/sdt-zeiss/prototype-ai/internal/googleai"
	"github.com/sdt-zeiss/prototype-ai/internal/indexer"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
	"github.com/sdt-zeiss/prototype-ai/internal/objectstore"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
	"github.com/sdt-zeiss/prototype-ai/internal/openai"
	"github.com/sdt-zeiss/prototype-ai/internal/prompts"
	"github.com/sdt-zeiss/prototype-ai/internal/rag"
	"github.com/sdt-zeiss/prototype-ai/internal/repository"
	"github.com/sdt-zeiss/prototype-ai/internal/service"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
	"github.com/sdt-zeiss/prototype-ai/internal/transcription"
	"github.com/sdt-zeiss/prototype-ai/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	commentsDB     *sql.DB
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

const (
	embeddingProviderOpenAI = "openai"
	embeddingProviderGoogle = "google"
)

const riverQueueDepthInterval = 15 * time.Second

// components are the services shared by the HTTP handlers and the River workers.
type components struct {
	indexer    *indexer.Indexer
	answerer   *rag.Answerer
	analysis   *service.AnalysisService
	posts      *service.PostsService
	commentsDB *sql.DB
}

// vendorMetrics and friends unwrap *observability.Metrics into interfaces that stay nil when metrics are off.
func vendorMetrics(m *observability.Metrics) observability.VendorMetrics {
	if m == nil {
		return nil
	}

	return m.Vendor
}

func pipelineMetrics(m *observability.Metrics) observability.PipelineMetrics {
	if m == nil {
		return nil
	}

	return m.Pipeline
}

func jobMetrics(m *observability.Metrics) observability.JobMetrics {
	if m == nil {
		return nil
	}

	return m.Jobs
}

func apiMetrics(m *observability.Metrics) observability.APIMetrics {
	if m == nil {
		return nil
	}

	return m.API
}

func cacheMetrics(m *observability.Metrics) observability.CacheMetrics {
	if m == nil {
		return nil
	}

	return m.Cache
}

// setupMetrics creates the meter provider and collectors when metrics are enabled.
// When NewMeterProvider returns nil (unsupported or disabled exporter), everything is nil (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, handler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("prototype-ai"))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, handler, metrics, nil
}

// newEmbedder picks the embedding backend. The OpenAI client doubles as the default.
func newEmbedder(ctx context.Context, cfg *config.Config, oa *openai.Client, m observability.VendorMetrics) (embeddings.Client, error) {
	switch cfg.EmbeddingProvider {
	case embeddingProviderOpenAI:
		return oa, nil
	case embeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.GoogleAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
			googleai.WithMetrics(m),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return client, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// buildComponents wires vendor clients, repositories and services. The caller owns commentsDB.
func buildComponents(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, metrics *observability.Metrics) (*components, error) {
	vm := vendorMetrics(metrics)
	pm := pipelineMetrics(metrics)

	oa := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
		openai.WithImageModel(cfg.ImageModel),
		openai.WithRateLimit(cfg.LLMRateLimit),
		openai.WithOrganization(cfg.OpenAIOrganization),
		openai.WithProject(cfg.OpenAIProject),
		openai.WithMetrics(vm),
	)

	embedder, err := newEmbedder(ctx, cfg, oa, vm)
	if err != nil {
		return nil, err
	}

	catalogue, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	ragTemplate, err := catalogue.RAG(cfg.RAGAnswerFormat)
	if err != nil {
		return nil, err
	}

	commentsDB, err := repository.OpenCommentsDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	ix := indexer.NewIndexer(
		repository.NewVectorsRepository(db),
		embedder,
		repository.NewCommentsRepository(commentsDB),
		cfg.VectorCollection,
		pm,
	)

	answerer, err := rag.NewAnswerer(ix.VectorStore(""), embedder, oa, rag.Options{
		Model:        cfg.RAGChatModel,
		TopK:         cfg.RAGTopK,
		Template:     ragTemplate,
		CacheMetrics: cacheMetrics(metrics),
	})
	if err != nil {
		_ = commentsDB.Close()

		return nil, fmt.Errorf("create answerer: %w", err)
	}

	images, err := objectstore.New(objectstore.Options{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		VendorMetrics: vm,
	})
	if err != nil {
		_ = commentsDB.Close()

		return nil, fmt.Errorf("create object store: %w", err)
	}

	if err := images.EnsureBucket(ctx); err != nil {
		// Posts are still written without images when the bucket is unreachable.
		slog.Warn("object store not ready; posts will carry no image", "bucket", cfg.MinioBucket, "error", err)
	}

	postsRepo := repository.NewPostsRepository(db)

	pipeline, err := topics.NewPipeline(embedder, oa, images, postsRepo, topics.Options{
		ChatModel:      cfg.ChatModel,
		PostLimit:      cfg.PostLimit,
		MinClusterSize: cfg.TopicMinSize,
		Components:     cfg.TopicComponents,
		KeywordsCount:  cfg.TopicKeywordsCount,
		Seed:           cfg.TopicSeed,
		AuthorID:       cfg.PostAuthorID,
		Prompts:        catalogue,
		Metrics:        pm,
	})
	if err != nil {
		_ = commentsDB.Close()

		return nil, fmt.Errorf("create topic pipeline: %w", err)
	}

	transcriber := transcription.NewClient(transcription.ClientOptions{
		BaseURL:         cfg.GladiaBaseURL,
		APIKey:          cfg.GladiaAPIKey,
		PollInterval:    cfg.TranscriptionPollInterval,
		MaxPolls:        cfg.TranscriptionMaxPolls,
		MaxWait:         cfg.TranscriptionMaxWait,
		VendorMetrics:   vm,
		PipelineMetrics: pm,
	})

	return &components{
		indexer:    ix,
		answerer:   answerer,
		analysis:   service.NewAnalysisService(transcriber, pipeline, cfg.TranscriptSnapshotPath),
		posts:      service.NewPostsService(postsRepo),
		commentsDB: commentsDB,
	}, nil
}

// migrateRiver brings the river_* tables up to date.
func migrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create River migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate River: %w", err)
	}

	for _, v := range res.Versions {
		slog.Info("applied River migration", "version", v.Version)
	}

	return nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err            error
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if err2 := shutdownObservability(context.Background(), nil, meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	fail := func(err error) (*App, error) {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after startup error", "error", err2)
		}

		return nil, err
	}

	if err := migrateRiver(ctx, db); err != nil {
		return fail(err)
	}

	comp, err := buildComponents(ctx, cfg, db, metrics)
	if err != nil {
		return fail(err)
	}

	jm := jobMetrics(metrics)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewReindexCommentsWorker(comp.indexer, cfg.VectorCollection, jm))
	river.AddWorker(riverWorkers, workers.NewAnalyzeURLWorker(comp.analysis, jm))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{Metrics: jm},
		MaxAttempts:  cfg.RiverMaxAttempts,
	})
	if err != nil {
		_ = comp.commentsDB.Close()

		return fail(fmt.Errorf("create River client: %w", err))
	}

	inserter := jobs.NewRiverJobInserter(riverClient, cfg.RiverMaxAttempts)

	server := newHTTPServer(cfg, routes{
		health:   handlers.NewHealthHandler(db),
		analysis: handlers.NewAnalysisHandler(comp.analysis, inserter, apiMetrics(metrics)),
		ask:      handlers.NewAskHandler(comp.answerer),
		index:    handlers.NewIndexHandler(comp.indexer, inserter),
		posts:    handlers.NewPostsHandler(comp.posts),
		metrics:  metricsHandler,
	}, metrics, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		db:             db,
		commentsDB:     comp.commentsDB,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

type routes struct {
	health   *handlers.HealthHandler
	analysis *handlers.AnalysisHandler
	ask      *handlers.AskHandler
	index    *handlers.IndexHandler
	posts    *handlers.PostsHandler
	metrics  http.Handler
}

// newHTTPServer builds the HTTP server and muxes (no auth or deadline on /health, /ready and /metrics).
// Handler chain: RequestID -> otelhttp(Logging(Metrics(MaxBody(mux)))) so access logs get trace_id/span_id.
func newHTTPServer(
	cfg *config.Config,
	h routes,
	metrics *observability.Metrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", h.health.Check)
	public.HandleFunc("GET /ready", h.health.Ready)

	if h.metrics != nil {
		public.Handle("GET /metrics", h.metrics)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /analyze-audio", h.analysis.AnalyzeAudio)
	protected.HandleFunc("POST /analyze-url", h.analysis.AnalyzeURL)
	protected.HandleFunc("POST /ask", h.ask.Ask)
	protected.HandleFunc("POST /preprocess-comments", h.index.PreprocessComments)
	protected.HandleFunc("POST /add-vector", h.index.AddVector)
	protected.HandleFunc("GET /posts", h.posts.List)
	protected.HandleFunc("GET /posts/report", h.posts.Report)
	protected.HandleFunc("GET /posts/{id}", h.posts.Get)

	mux := http.NewServeMux()
	mux.Handle("GET /health", public)
	mux.Handle("GET /ready", public)
	mux.Handle("GET /metrics", public)
	mux.Handle("/", middleware.Auth(cfg.APIKey)(middleware.Deadline(cfg.RequestTimeout())(protected)))

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for probes and scrapes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				return false
			default:
				return true
			}
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	var (
		requests middleware.RequestRecorder
		tooLarge middleware.RequestBodyTooLargeRecorder
	)
	if metrics != nil {
		requests = metrics.HTTP
		tooLarge = metrics.API
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	var inner http.Handler = middleware.MaxBody(middleware.BodyLimits{
		JSON:   cfg.MaxJSONBodyBytes,
		Upload: cfg.MaxRequestBodyBytes,
	}, tooLarge)(mux)
	inner = middleware.Metrics(requests)(inner)
	inner = middleware.Logging(inner)
	handler := otelhttp.NewHandler(inner, "prototype-ai", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout = 5 * time.Minute
		idleTimeout = 60 * time.Second
	)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		// Synchronous analysis waits on transcription polling, so this is much longer than the read timeout.
		// Handlers run under cfg.RequestTimeout(), which ends before this so the error response still goes out.
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. When ctx is cancelled or a component fails, it cancels the internal
// River context so River and the queue depth poller stop before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if jm := jobMetrics(a.metrics); jm != nil {
		go runRiverQueueDepthPoller(riverCtx, a.db, jm)
	}

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runRiverQueueDepthPoller periodically updates the River default-queue depth gauge.
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, jm observability.JobMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			river.QueueDefault,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)

			return
		}

		jm.SetRiverQueueDepth(count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order, then closes the comments database. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		if closeErr := a.commentsDB.Close(); closeErr != nil {
			slog.Error("close comments database", "error", closeErr)
		}
	}()

	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
