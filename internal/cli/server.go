package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lecture-quiz-service/internal/app"
	"lecture-quiz-service/internal/config"
	"lecture-quiz-service/internal/enrich"
	"lecture-quiz-service/internal/infra/memory"
	pgstore "lecture-quiz-service/internal/infra/postgres"
	redisindex "lecture-quiz-service/internal/infra/redis"
	transport "lecture-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the lecture quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
	}

	var codes app.JoinCodeIndex = memory.NewJoinCodeIndex()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		codes = redisindex.NewJoinCodeIndex(client, config.TTLDuration(cfg.Redis.TTL, 12*time.Hour))
	}

	var enricher enrich.Enricher = enrich.NewStatic(nil)
	if cfg.OpenAI.APIKey != "" {
		enricher = enrich.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		log.Printf("no openai api key configured; quiz generation disabled")
	}

	coordinator := app.NewCoordinator(store, codes, enricher, app.NewBroker(), app.NewTimerRegistry())
	wsHandler := transport.NewWSHandler(coordinator)
	queryHandler := transport.NewQueryHandler(coordinator)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/presenter", wsHandler.ServePresenter)
	mux.HandleFunc("/ws/participant", wsHandler.ServeParticipant)
	queryHandler.Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections outlive any sane value.
	}

	go func() {
		log.Printf("starting lecture quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
