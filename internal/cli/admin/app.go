package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cloo-solutions/autoreply/internal/api/handlers"
	"github.com/cloo-solutions/autoreply/internal/api/middleware"
	"github.com/cloo-solutions/autoreply/internal/cache"
	"github.com/cloo-solutions/autoreply/internal/config"
	"github.com/cloo-solutions/autoreply/internal/database"
	"github.com/cloo-solutions/autoreply/internal/gmail"
	"github.com/cloo-solutions/autoreply/internal/jobs"
	"github.com/cloo-solutions/autoreply/internal/metrics"
	"github.com/cloo-solutions/autoreply/internal/openai"
	"github.com/cloo-solutions/autoreply/internal/repository"
	"github.com/cloo-solutions/autoreply/internal/rules"
	"github.com/cloo-solutions/autoreply/internal/seed"
	"github.com/cloo-solutions/autoreply/internal/server"
	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/cloo-solutions/autoreply/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

// app holds the wired components of a running daemon.
type app struct {
	cfg        *config.Config
	router     *server.RouterConfig
	dispatcher *jobs.Dispatcher
	processor  *jobs.InboxProcessor
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type appOptions struct {
	migrate bool
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("AUTOREPLY_OPENAI_API_KEY is required")
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	m := metrics.New()

	llm := openai.New(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.OpenAIEmbeddingModel),
		EmbeddingDimensions: cfg.OpenAIEmbeddingDimensions,
		ChatModel:           cfg.OpenAIModel,
		Temperature:         &cfg.OpenAITemperature,
		MaxAttempts:         cfg.OpenAIMaxAttempts,
	})

	policies, err := a.policyService(ctx, llm, opts)
	if err != nil {
		return nil, err
	}
	policies.SetIndexObserver(m)

	var objects seed.ObjectGetter
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		objects = s3Client
	}

	initial, err := seed.NewLoader(objects).Load(ctx, cfg.PolicySeed)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy seed: %w", err)
	}
	if err := policies.Load(ctx, initial); err != nil {
		return nil, fmt.Errorf("failed to index policies: %w", err)
	}
	log.Printf("indexed %d policies", len(initial))

	replyCache := newCache(ctx, cfg)
	if closer, isCloser := replyCache.(interface{ Close() error }); isCloser {
		a.closers = append(a.closers, func() { _ = closer.Close() })
	}

	responses := service.NewResponseService(policies, llm, replyCache, cfg.SearchTopK)
	responses.SetObserver(m)

	mail := newMailGateway(ctx, cfg)
	emails := service.NewEmailService(responses, mail, cfg.MaxBatchSize)
	emails.SetObserver(m)

	predicate, err := newPredicate(ctx, cfg.AutoRespondPolicy)
	if err != nil {
		return nil, err
	}

	a.dispatcher = jobs.NewDispatcher()
	a.processor = jobs.NewInboxProcessor(mail, responses, predicate, jobs.InboxConfig{
		MaxResults: cfg.InboxMaxResults,
		Delay:      cfg.ProcessingDelay,
		MarkRead:   cfg.InboxMarkRead,
		UseCache:   true,
	})
	a.processor.SetObserver(m)

	var auth middleware.AuthValidator
	if cfg.APIKey != "" {
		auth = middleware.StaticKey(cfg.APIKey)
	} else {
		log.Println("AUTOREPLY_API_KEY not set, API is unauthenticated")
	}

	a.router = &server.RouterConfig{
		AuthValidator: auth,
		Metrics:       m,
		SystemHandler: handlers.NewSystemHandler(),
		EmailHandler:  handlers.NewEmailHandler(emails, responses, jobs.NewLauncher(jobs.InboxJobName, a.processor, a.dispatcher)),
		PolicyHandler: handlers.NewPolicyHandler(policies),
		CacheHandler:  handlers.NewCacheHandler(replyCache),
	}

	ok = true
	return a, nil
}

func (a *app) policyService(ctx context.Context, llm *openai.Client, opts appOptions) (*service.PolicyService, error) {
	embedder := service.NewChunkEmbedder(llm, service.ChunkConfigFor(a.cfg.ChunkSize, a.cfg.ChunkOverlap))

	if !a.cfg.HasDatabase() {
		log.Println("AUTOREPLY_DATABASE_URL not set, keeping policies in memory")
		store := repository.NewMemoryStore()
		return service.NewPolicyService(store, store.Policies(), store.Index(), embedder), nil
	}

	// The pool ping waits for Postgres to come up before migrating.
	pool, err := database.NewPool(ctx, database.Config{URL: a.cfg.DatabaseURL})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	if opts.migrate {
		if err := database.Migrate(a.cfg.DatabaseURL, a.cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return newPostgresPolicyService(pool, embedder), nil
}

func newPostgresPolicyService(pool *pgxpool.Pool, embedder *service.ChunkEmbedder) *service.PolicyService {
	return service.NewPolicyService(
		repository.NewTxRunner(pool),
		repository.NewPolicyRepository(pool),
		repository.NewPolicyChunkRepository(pool),
		embedder,
	)
}

func newCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisURL == "" {
		log.Println("AUTOREPLY_REDIS_URL not set, caching disabled")
		return cache.Noop{}
	}
	return cache.NewRedisCache(ctx, cache.Config{URL: cfg.RedisURL, TTL: cfg.CacheTTL})
}

// newMailGateway falls back to a disabled gateway so that policy and preview
// endpoints keep working without Gmail access.
func newMailGateway(ctx context.Context, cfg *config.Config) service.MailGateway {
	if !cfg.HasGmail() {
		log.Printf("gmail credentials not found at %s, sending disabled", cfg.GmailCredentialsPath)
		return gmail.Disabled{}
	}

	ts, err := newAuthenticator(cfg, cfg.GmailInteractiveAuth).TokenSource(ctx)
	if err != nil {
		log.Printf("gmail authorisation failed, sending disabled: %v", err)
		return gmail.Disabled{}
	}

	gw, err := gmail.NewGateway(ctx, ts, gmail.Config{
		User:              cfg.GmailUser,
		Query:             cfg.InboxQuery,
		UnreadOnly:        cfg.InboxMarkRead,
		RequestsPerSecond: cfg.GmailRequestsPerSecond,
	})
	if err != nil {
		log.Printf("gmail client init failed, sending disabled: %v", err)
		return gmail.Disabled{}
	}
	log.Println("gmail gateway ready")
	return gw
}

func newAuthenticator(cfg *config.Config, interactive bool) *gmail.Authenticator {
	return gmail.NewAuthenticator(gmail.AuthConfig{
		CredentialsPath: cfg.GmailCredentialsPath,
		TokenPath:       cfg.GmailTokenPath,
		Scopes:          cfg.GmailScopes,
		Interactive:     interactive,
		Out:             os.Stderr,
	})
}

func newPredicate(ctx context.Context, path string) (rules.Predicate, error) {
	if path == "" {
		return rules.Always{}, nil
	}
	predicate, err := rules.LoadRego(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load auto-respond policy: %w", err)
	}
	log.Printf("auto-respond policy loaded from %s", path)
	return predicate, nil
}

// startWorker runs scheduled inbox processing when a poll interval is set.
func (a *app) startWorker(ctx context.Context) *jobs.Worker {
	if a.cfg.InboxPollInterval <= 0 {
		return nil
	}
	worker := jobs.NewWorker(jobs.InboxJobName, a.processor, a.dispatcher, a.cfg.InboxPollInterval)
	go worker.Start(ctx)
	log.Printf("inbox worker started (every %s)", a.cfg.InboxPollInterval.Round(time.Second))
	return worker
}
