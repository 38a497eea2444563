package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mafa-systems/mafa-agents/agent/agents"
	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/agent/llm"
	"github.com/mafa-systems/mafa-agents/agent/memory"
	"github.com/mafa-systems/mafa-agents/agent/tool"
	"github.com/mafa-systems/mafa-agents/pkg/config"
	"github.com/mafa-systems/mafa-agents/pkg/eventbus"
	"github.com/mafa-systems/mafa-agents/pkg/httpx"
	logx "github.com/mafa-systems/mafa-agents/pkg/logger"
	"github.com/mafa-systems/mafa-agents/pkg/metrics"
	"github.com/mafa-systems/mafa-agents/pkg/ratelimit"
	"github.com/mafa-systems/mafa-agents/server"
)

const envPrefix = "mafa"

type serverConfig struct {
	ListenAddr      string        `split_words:"true" default:":8000"`
	Version         string        `split_words:"true" default:"dev"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"120s"`
}

func main() {
	logx.Init(*config.MustNew[logx.Config](envPrefix + "_log"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvCfg := config.MustNew[serverConfig](envPrefix)
	httpClient := httpx.NewClient(*config.MustNew[httpx.Config](envPrefix + "_http"))
	model := llm.MustNewClient(*config.MustNew[llm.Config](envPrefix + "_llm"))
	broker := tool.NewBrokerClient(*config.MustNew[tool.BrokerConfig](envPrefix+"_broker"), httpClient)
	predictor := tool.NewRemotePredictor(*config.MustNew[tool.PredictorConfig](envPrefix+"_predictor"), httpClient)

	checks := []server.DependencyCheck{
		{Name: "broker", Probe: broker.Ping},
		{Name: "predictor", Probe: predictor.Ping},
		{Name: "llm", Probe: model.Ping},
	}

	memStore, memProbe := newMemoryStore(ctx, *config.MustNew[memory.Config](envPrefix+"_memory"), model)
	if closer, ok := memStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	checks = append(checks, server.DependencyCheck{Name: "memory", Probe: memProbe})

	bus, err := eventbus.NewRedisBus(*config.MustNew[eventbus.RedisConfig](envPrefix + "_redis"))
	if err != nil {
		log.Fatal().Err(err).Msg("event bus config invalid")
	}
	defer bus.Close()
	checks = append(checks, server.DependencyCheck{Name: "bus", Probe: bus.Ping})

	m := metrics.New()
	hub := server.NewHub(m)

	srv := server.New(server.Options{
		Agents:    agents.NewRegistry(model, broker, memStore),
		Bus:       bus,
		Hub:       hub,
		Metrics:   m,
		Limiter:   ratelimit.New(*config.MustNew[ratelimit.Config](envPrefix + "_ratelimit")),
		Predictor: predictor,
		Trades:    broker,
		Checks:    checks,
		Version:   srvCfg.Version,
	})

	server.NewRelay(bus, hub, m).Start(ctx)

	httpSrv := &http.Server{
		Addr:         srvCfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("addr", srvCfg.ListenAddr).Str("version", srvCfg.Version).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown incomplete")
	}
}

// newMemoryStore builds the vector memory store. Without a DSN, or when the
// schema cannot be prepared, the service runs on no-op memory instead of
// refusing to start; the nil probe surfaces as "unavailable" on /health.
func newMemoryStore(ctx context.Context, cfg memory.Config, embed memory.Embedder) (contractx.MemoryStore, func(context.Context) error) {
	if cfg.DSN == "" {
		log.Warn().Msg("no memory DSN configured, long-term memory disabled")
		return memory.NoopStore{}, nil
	}

	store, err := memory.NewStore(cfg, embed)
	if err != nil {
		log.Fatal().Err(err).Msg("memory store config invalid")
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("memory schema unavailable, long-term memory disabled")
		_ = store.Close()
		return memory.NoopStore{}, nil
	}
	return store, store.Ping
}
