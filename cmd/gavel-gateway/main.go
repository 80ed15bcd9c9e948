package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/verdictech/gavel/internal/dotenv"
	"github.com/verdictech/gavel/pkg/casecache"
	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/ai/brain"
	"github.com/verdictech/gavel/pkg/core/ai/docs"
	"github.com/verdictech/gavel/pkg/core/ai/stt"
	"github.com/verdictech/gavel/pkg/core/ai/tts"
	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/evidence"
	"github.com/verdictech/gavel/pkg/gateway/config"
	"github.com/verdictech/gavel/pkg/gateway/lifecycle"
	"github.com/verdictech/gavel/pkg/gateway/live/conns"
	"github.com/verdictech/gavel/pkg/gateway/live/hub"
	gatewayserver "github.com/verdictech/gavel/pkg/gateway/server"
	"github.com/verdictech/gavel/pkg/identity"
	"github.com/verdictech/gavel/pkg/store"
	"github.com/verdictech/gavel/pkg/store/pg"
)

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

// buildStore opens the configured persistence driver. The postgres
// driver runs pending migrations before serving.
func buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg.New(pool), nil
	default:
		return store.NewMemory(), nil
	}
}

func buildCache(cfg config.Config) (casecache.Cache, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return casecache.New(casecache.CacheTypeRedis,
			casecache.WithRedisClient(client),
			casecache.WithTTL(cfg.CacheTTL))
	default:
		return casecache.New(casecache.CacheTypeMemory)
	}
}

// buildBrain selects the dialogue/analysis capability: the dedicated
// model service when configured, Gemini otherwise.
func buildBrain(ctx context.Context, cfg config.Config) (ai.Generator, ai.Analyzer, error) {
	if cfg.BrainServiceURL != "" {
		c := brain.NewHTTPClient(cfg.BrainServiceURL, nil)
		return c, c, nil
	}
	g, err := brain.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("init gemini: %w", err)
	}
	return g, g, nil
}

func buildVerifier(cfg config.Config) identity.Verifier {
	if cfg.IdentityServiceURL != "" {
		return identity.NewHTTP(cfg.IdentityServiceURL, nil)
	}
	return identity.NewStatic(cfg.APIKeys)
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cache, err := buildCache(cfg)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cache.Close()

	generator, analyzer, err := buildBrain(ctx, cfg)
	if err != nil {
		return err
	}

	var extractor ai.DocumentExtractor
	if cfg.DocsServiceURL != "" {
		extractor = docs.NewHTTP(cfg.DocsServiceURL, nil)
	}

	eng, err := engine.New(engine.Deps{
		Store:       st,
		Cache:       cache,
		Evidence:    evidence.NewMemory(),
		Transcriber: stt.NewDeepgram(cfg.DeepgramAPIKey),
		Generator:   generator,
		Synthesizer: tts.NewOpenAI(cfg.OpenAIAPIKey),
		Analyzer:    analyzer,
		Extractor:   extractor,
		Logger:      logger,
	}, engine.Config{
		CodeAttempts:      cfg.CodeAttempts,
		TranscribeTimeout: cfg.TranscribeTimeout,
		GenerateTimeout:   cfg.GenerateTimeout,
		SynthesizeTimeout: cfg.SynthesizeTimeout,
		AnalyzeTimeout:    cfg.AnalyzeTimeout,
		HistoryLimit:      cfg.HistoryLimit,
		AudioDir:          cfg.AudioDir,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	lc := &lifecycle.Lifecycle{}
	tracker := conns.NewTracker()

	gw := gatewayserver.New(gatewayserver.Deps{
		Config:    cfg,
		Logger:    logger,
		Engine:    eng,
		Verifier:  buildVerifier(cfg),
		Lifecycle: lc,
		Hub:       hub.New(),
		Conns:     tracker,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr, "auth_mode", cfg.AuthMode,
		"store", cfg.StoreDriver, "cache", cfg.CacheDriver)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	lc.SetDraining(true)
	tracker.WarnAll("draining", "gateway is shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		tracker.CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "gavel-gateway: %v\n", err)
		return 1
	}

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "gavel-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
