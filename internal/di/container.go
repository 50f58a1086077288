package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"topic-orchestrator/internal/adapter/repository"
	"topic-orchestrator/internal/adapter/research"
	"topic-orchestrator/internal/cache"
	"topic-orchestrator/internal/domain"
	"topic-orchestrator/internal/infra/config"
	"topic-orchestrator/internal/infra/httpclient"
	"topic-orchestrator/internal/usecase"
	"topic-orchestrator/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
// Everything is passed explicitly; nothing is an ambient global.
type ApplicationComponents struct {
	// Repositories
	TopicRepo domain.TopicRepository
	TaskRepo  domain.TaskRepository
	FeedRepo  domain.FeedRepository
	PrefRepo  domain.PreferenceRepository

	// Usecases
	Lifecycle usecase.LifecycleUsecase
	Suggest   usecase.SuggestUsecase
	Feed      usecase.FeedUsecase

	// Shared services
	Notifier *usecase.StatusNotifier
	Cache    *cache.ResponseCache

	// Worker
	Dispatcher *worker.Dispatcher
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	topicRepo := repository.NewTopicRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	feedRepo := repository.NewFeedRepository(pool)
	prefRepo := repository.NewPreferenceRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling. The research client's
	// transport timeout sits above the dispatcher's execution timeout so
	// the dispatcher decides when a task times out.
	researchHTTP := httpclient.NewPooledClient(time.Duration(cfg.ResearchTimeout+30) * time.Second)
	suggestHTTP := httpclient.NewPooledClient(time.Duration(cfg.SuggestTimeout) * time.Second)

	// External collaborators
	executor := research.NewClient(cfg.ResearchURL, cfg.ResearchModel, researchHTTP)
	suggester := research.NewSuggester(cfg.SuggestURL, cfg.SuggestModel, suggestHTTP)

	// Shared services
	responseCache := cache.New(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second, log)
	notifier := usecase.NewStatusNotifier()

	// Usecases
	feedUsecase := usecase.NewFeedUsecase(feedRepo, txManager, responseCache, log)
	suggestUsecase := usecase.NewSuggestUsecase(topicRepo, prefRepo, suggester, responseCache, log)
	lifecycle := usecase.NewLifecycleUsecase(topicRepo, taskRepo, feedUsecase, notifier, txManager, log)

	// Worker, then close the lifecycle/worker cycle.
	dispatcher := worker.NewDispatcher(executor, lifecycle, log,
		worker.WithMaxPerUser(cfg.MaxTasksPerUser),
		worker.WithExecutionTimeout(time.Duration(cfg.ResearchTimeout)*time.Second),
	)
	lifecycle.AttachDispatcher(dispatcher)

	return &ApplicationComponents{
		TopicRepo:  topicRepo,
		TaskRepo:   taskRepo,
		FeedRepo:   feedRepo,
		PrefRepo:   prefRepo,
		Lifecycle:  lifecycle,
		Suggest:    suggestUsecase,
		Feed:       feedUsecase,
		Notifier:   notifier,
		Cache:      responseCache,
		Dispatcher: dispatcher,
	}
}
