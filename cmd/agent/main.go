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

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/agent"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/config"
	logx "github.com/aws-samples/sample-ai-agent-accelerator/internal/logger"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/repository"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
	transport "github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/transport/http/runtime"
)

func main() {
	if err := logx.Init(*config.MustLoad[logx.Config]("LOG"), "agent"); err != nil {
		panic(err)
	}

	// Load configuration
	cfg := config.MustLoad[config.AgentConfig]("")
	memCfg := config.MustLoad[config.MemoryConfig]("MEMORY")
	llmCfg := config.MustLoad[config.LLMConfig]("LLM")
	otelCfg := config.MustLoad[config.TelemetryConfig]("OTEL")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := memCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid memory configuration")
	}

	log.Info().
		Str("region", cfg.AWSRegion).
		Str("app_name", cfg.AppName).
		Str("knowledge_base_id", cfg.KnowledgeBaseID).
		Str("memory_id", cfg.MemoryID).
		Str("memory_backend", memCfg.Backend).
		Str("model", llmCfg.Model).
		Msg("starting agent runtime")

	ctx := context.Background()

	tp, err := telemetry.InitTracing(ctx, *otelCfg, cfg.AppName+"-agent")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	// Initialize memory
	memory, err := repository.Open(ctx, *memCfg, cfg.AWSRegion)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open memory")
	}
	defer memory.Close()

	// Initialize model and tools
	model, err := agent.NewOpenAIModel(*llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create model client")
	}
	tools, err := agent.NewRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create tool registry")
	}
	if cfg.KnowledgeBaseID != "" {
		retrieve, err := agent.NewRetrieveToolFromConfig(ctx, cfg.AWSRegion, cfg.KnowledgeBaseID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create retrieve tool")
		}
		if err := tools.Register(retrieve); err != nil {
			log.Fatal().Err(err).Msg("failed to register retrieve tool")
		}
	} else {
		log.Warn().Msg("KNOWLEDGE_BASE_ID is not set, retrieve tool disabled")
	}

	// One agent per container, bound on the first invocation.
	binding := agent.NewBinding(agent.NewFactory(memory, model, tools, agent.Options{
		MaxToolRounds: cfg.MaxToolRounds,
		ToolTimeout:   cfg.ToolTimeout,
	}))
	server := transport.NewRuntimeServer(runtime.NewHandler(binding, cfg.MemoryID))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Info().Str("addr", addr).Msg("agent runtime listening")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn().Msg("SIGTERM received, exiting")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("agent runtime stopped")
}
