package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/adapter/agentclient"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/config"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/conversation"
	logx "github.com/aws-samples/sample-ai-agent-accelerator/internal/logger"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/repository"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/service"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
	transport "github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/web"
)

func main() {
	if err := logx.Init(*config.MustLoad[logx.Config]("LOG"), "web"); err != nil {
		panic(err)
	}

	// Load configuration
	cfg := config.MustLoad[config.WebConfig]("")
	memCfg := config.MustLoad[config.MemoryConfig]("MEMORY")
	otelCfg := config.MustLoad[config.TelemetryConfig]("OTEL")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := memCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid memory configuration")
	}

	log.Info().
		Str("region", cfg.AWSRegion).
		Str("agent_runtime", cfg.AgentRuntime).
		Str("memory_id", cfg.MemoryID).
		Str("memory_backend", memCfg.Backend).
		Bool("authentication", cfg.EnableAuthentication).
		Msg("starting web tier")

	ctx := context.Background()

	tp, err := telemetry.InitTracing(ctx, *otelCfg, "ai-chat-web")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	// Initialize memory
	memory, err := repository.Open(ctx, *memCfg, cfg.AWSRegion)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open memory")
	}
	defer memory.Close()

	// Initialize agent runtime client
	var rt agentclient.Runtime
	if cfg.RuntimeEndpoint != "" {
		log.Info().Str("endpoint", cfg.RuntimeEndpoint).Msg("invoking agent container directly")
		rt = agentclient.NewHTTPRuntime(cfg.RuntimeEndpoint, cfg.RuntimeTimeout)
	} else {
		rt, err = agentclient.NewAgentCoreRuntimeFromConfig(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create agent runtime client")
		}
	}
	invoker := agentclient.NewClient(rt, cfg.AgentRuntime)

	// Initialize service
	svc := service.New(invoker, conversation.NewStore(memory, cfg.MemoryID), cfg.HistoryLimit)

	// Initialize handlers
	templates := web.MustTemplates()
	h := web.NewHandler(svc, templates, web.Identity{AuthEnabled: cfg.EnableAuthentication}, cfg.CognitoLogoutURL)
	server := transport.NewWebServer(h, templates)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Info().Str("addr", addr).Msg("web tier listening")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn().Msg("shutting down web tier")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("web tier stopped")
}
