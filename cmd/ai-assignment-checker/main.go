// Command ai-assignment-checker runs one role of the submission pipeline:
// the HTTP ingress, or one of the four stage workers, selected by --role.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/artzaitsev/ai-assignment-checker/internal/bootstrap"
	"github.com/artzaitsev/ai-assignment-checker/internal/config"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	role := flag.String("role", getEnv("ROLE", ""), "process role: api, worker-ingest-telegram, worker-normalize, worker-evaluate, worker-deliver")
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	dryRunStartup := flag.Bool("dry-run-startup", false, "validate wiring and exit zero without serving traffic")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no %s found, continuing with existing environment: %v", envPath, err)
	}

	if *role == "" {
		log.Fatal("--role (or ROLE) is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := buildConfig(*role)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to wire role %s: %v", *role, err)
	}
	defer app.Close()

	log.Printf("wired role %s", *role)

	if *dryRunStartup {
		log.Printf("dry-run-startup: wiring validated, exiting")
		return
	}

	if app.Router != nil {
		runAPI(ctx, app.Router)
		return
	}
	runWorker(ctx, app)
}

// runWorker starts the Runner and blocks until ctx is cancelled (SIGTERM or
// SIGINT), then waits for the in-flight tick to finish.
func runWorker(ctx context.Context, app *bootstrap.App) {
	app.Runner.Start(ctx)
	<-ctx.Done()
	log.Printf("shutting down, waiting for in-flight tick")
	app.Runner.Stop()
}

func buildConfig(role string) (bootstrap.Config, error) {
	schedulerCfg, err := config.LoadSchedulerConfigFromEnv()
	if err != nil {
		return bootstrap.Config{}, err
	}
	dbCfg, err := config.LoadDatabaseConfigFromEnv()
	if err != nil {
		return bootstrap.Config{}, err
	}

	workerID := getEnv("WORKER_ID", defaultWorkerID())

	return bootstrap.Config{
		Role:             role,
		WorkerID:         workerID,
		Scheduler:        schedulerCfg,
		Database:         dbCfg,
		LLMAddr:          getEnv("LLM_SERVICE_ADDR", "localhost:50051"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

// runAPI serves the gin router with graceful shutdown on ctx cancellation.
func runAPI(ctx context.Context, router http.Handler) {
	httpPort := getEnv("HTTP_PORT", "8080")
	srv := &http.Server{Addr: ":" + httpPort, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error during HTTP shutdown: %v", err)
		}
	}()

	log.Printf("HTTP server listening on :%s", httpPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

