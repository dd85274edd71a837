// Package bootstrap wires the concrete dependency graph — database pool,
// repository, object store, LLM client, Telegram fetcher — into the
// Runner or HTTP router a role needs, mirroring the config -> database ->
// services -> router sequence of the teacher's cmd/tarsy/main.go.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/artzaitsev/ai-assignment-checker/internal/config"
	"github.com/artzaitsev/ai-assignment-checker/internal/database"
	"github.com/artzaitsev/ai-assignment-checker/internal/httpapi"
	"github.com/artzaitsev/ai-assignment-checker/internal/llmclient"
	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
	"github.com/artzaitsev/ai-assignment-checker/internal/stages"
	"github.com/artzaitsev/ai-assignment-checker/internal/telegram"
)

// Role names accepted by the --role flag (spec.md §6).
const (
	RoleAPI             = "api"
	RoleWorkerIngest    = "worker-ingest-telegram"
	RoleWorkerNormalize = "worker-normalize"
	RoleWorkerEvaluate  = "worker-evaluate"
	RoleWorkerDeliver   = "worker-deliver"
)

// Roles lists every accepted --role value, in pipeline order, with api last
// since it has no stage of its own.
func Roles() []string {
	return []string{RoleWorkerIngest, RoleWorkerNormalize, RoleWorkerEvaluate, RoleWorkerDeliver, RoleAPI}
}

var workerStages = map[string]model.Stage{
	RoleWorkerIngest:    model.StageTelegramIngest,
	RoleWorkerNormalize: model.StageNormalize,
	RoleWorkerEvaluate:  model.StageEvaluate,
	RoleWorkerDeliver:   model.StageDeliver,
}

// Config collects everything Build needs beyond the role itself. The
// zero-value LLMAddr/TelegramBotToken are tolerated by roles that do not
// need them (only worker-evaluate dials the LLM service, only
// worker-ingest-telegram dials Telegram).
type Config struct {
	Role             string
	WorkerID         string
	Scheduler        config.SchedulerConfig
	Database         database.Config
	LLMAddr          string
	TelegramBotToken string
}

// App is the fully wired dependency graph for one process. Exactly one of
// Runner (worker roles) or Router (api role) is non-nil.
type App struct {
	DB        *database.Client
	Repo      *repository.PostgresRepository
	Artifacts objectstore.Store

	Runner *scheduler.Runner
	Router *gin.Engine

	closers []io.Closer
}

// Close releases every dependency Build opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Build validates cfg.Role and wires the dependency graph it requires. It
// does all the work --dry-run-startup needs to prove: a Build that returns
// nil error is, by construction, a fully wired process.
func Build(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Role != RoleAPI {
		if _, ok := workerStages[cfg.Role]; !ok {
			return nil, fmt.Errorf("unknown role %q", cfg.Role)
		}
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	app := &App{
		DB:        dbClient,
		Repo:      repository.NewPostgresRepository(dbClient.Pool),
		Artifacts: objectstore.NewInMemoryStore(),
	}

	if cfg.Role == RoleAPI {
		app.Router = httpapi.NewRouter(httpapi.Deps{
			Repo:      app.Repo,
			Artifacts: app.Artifacts,
			Runners:   map[string]httpapi.ReadinessSource{},
		})
		return app, nil
	}

	handler, err := buildHandler(cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Runner = &scheduler.Runner{
		Loop: &scheduler.WorkerLoop{
			Repo:              app.Repo,
			Stage:             workerStages[cfg.Role],
			WorkerID:          cfg.WorkerID,
			Handler:           handler,
			LeaseSeconds:      cfg.Scheduler.ClaimLeaseSeconds,
			HeartbeatInterval: cfg.Scheduler.HeartbeatInterval(),
			MaxAttempts:       cfg.Scheduler.MaxAttempts,
			ReclaimBatchLimit: cfg.Scheduler.ReclaimBatchLimit,
		},
		PollInterval: cfg.Scheduler.PollInterval(),
		IdleBackoff:  cfg.Scheduler.IdleBackoff(),
		ErrorBackoff: cfg.Scheduler.ErrorBackoff(),
	}
	return app, nil
}

// buildHandler constructs the one stage handler a worker role runs, dialing
// only the external collaborator that stage actually needs.
func buildHandler(cfg Config, app *App) (scheduler.Handler, error) {
	deps := stages.Deps{
		Repo:         app.Repo,
		Artifacts:    app.Artifacts,
		CompatPolicy: cfg.Scheduler.ArtifactCompatPolicy,
	}

	switch cfg.Role {
	case RoleWorkerIngest:
		if cfg.TelegramBotToken == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required for role %s", cfg.Role)
		}
		deps.Telegram = telegram.NewFileFetcher(cfg.TelegramBotToken)
		return stages.TelegramIngestHandler(deps), nil
	case RoleWorkerNormalize:
		return stages.NormalizeHandler(deps), nil
	case RoleWorkerEvaluate:
		llm, err := llmclient.NewGRPCClient(cfg.LLMAddr)
		if err != nil {
			return nil, fmt.Errorf("dialing LLM service: %w", err)
		}
		app.closers = append(app.closers, llm)
		deps.LLM = llm
		return stages.EvaluateHandler(deps), nil
	case RoleWorkerDeliver:
		return stages.DeliverHandler(deps), nil
	default:
		return nil, fmt.Errorf("unknown worker role %q", cfg.Role)
	}
}
