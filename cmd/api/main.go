package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/ersim-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/ersim-ai-platform/internal/api/router"
	"github.com/wolfman30/ersim-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/ersim-ai-platform/internal/http/middleware"
	"github.com/wolfman30/ersim-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/ersim-ai-platform/internal/resources"
	"github.com/wolfman30/ersim-ai-platform/internal/voice"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ersim API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for the resource gate", "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg)
	if err != nil {
		logger.Error("failed to build reasoning client", "error", err)
		os.Exit(1)
	}

	metricsHandler, simMetrics, resourceMetrics := setupMetrics()

	caseStore := cases.NewStore(pool)
	orchestrator := setupOrchestrator(cfg, caseStore, conversation.NewTurnStore(pool, cfg.TurnAppendAttempts), llmClient, simMetrics, logger)
	unlocker := setupResources(cfg, caseStore, redisClient, resources.NewS3Presigner(bootstrap.BuildS3Client(awsCfg, cfg)), resourceMetrics, logger)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(orchestrator, logger),
		ResourcesHandler:    resources.NewHandler(unlocker, logger),
		VoiceHandler:        setupVoice(cfg, orchestrator, logger),
		MetricsHandler:      metricsHandler,
		RateLimiter:         limiter,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		AuthJWTSecret:       cfg.AuthJWTSecret,
	})

	// Reasoning and speech calls run up to their own timeouts, so the write
	// timeout leaves room for both.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ReasoningTimeout + 2*cfg.SpeechTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.SimMetrics, *metrics.ResourceMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewSimMetrics(reg), metrics.NewResourceMetrics(reg)
}

func setupOrchestrator(cfg *appconfig.Config, store cases.CaseReader, ledger conversation.TurnLedger, llm conversation.LLMClient, m *metrics.SimMetrics, logger *logging.Logger) *conversation.Orchestrator {
	bridge := conversation.NewReasoningBridge(llm, conversation.BridgeConfig{
		Model:       reasoningModel(cfg),
		Temperature: cfg.ReasoningTemperature,
		Timeout:     cfg.ReasoningTimeout,
	}, logger, m)
	return conversation.NewOrchestrator(
		cases.NewPrimerBuilder(store, logger),
		ledger,
		bridge,
		conversation.OrchestratorConfig{HistoryTurns: cfg.HistoryMaxTurns, Metrics: m},
		logger,
	)
}

// reasoningModel returns the per-request model override; empty lets each
// provider client use the model it was built with.
func reasoningModel(cfg *appconfig.Config) string {
	if strings.EqualFold(strings.TrimSpace(cfg.LLMProvider), bootstrap.ProviderOpenAI) || strings.TrimSpace(cfg.LLMProvider) == "" {
		return cfg.OpenAIModel
	}
	return ""
}

func setupResources(cfg *appconfig.Config, finder resources.ResourceFinder, redisClient *redis.Client, signer resources.URLSigner, m *metrics.ResourceMetrics, logger *logging.Logger) *resources.Service {
	if strings.TrimSpace(cfg.AssetsBucket) == "" {
		logger.Warn("ERSIM_ASSETS_BUCKET not set; resource unlocks will fail")
	}
	return resources.NewService(
		finder,
		resources.NewGate(redisClient, cfg.ResourceGateTTL),
		signer,
		resources.ServiceConfig{Bucket: cfg.AssetsBucket, URLTTL: cfg.SignedURLTTL},
		logger,
		m,
	)
}

func setupVoice(cfg *appconfig.Config, responder voice.Responder, logger *logging.Logger) *voice.Handler {
	var transcriber *voice.WhisperTranscriber
	if strings.TrimSpace(cfg.WhisperAPIKey) != "" {
		transcriber = voice.NewWhisperTranscriber(
			conversation.NewOpenAIClient(cfg.WhisperAPIKey, cfg.OpenAIBaseURL),
			cfg.WhisperModel,
			cfg.SpeechTimeout,
		)
	} else {
		logger.Warn("WHISPER_API_KEY not set; transcription disabled")
	}
	if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
		logger.Warn("ELEVENLABS_API_KEY not set; speech synthesis disabled")
	}
	synthesizer := voice.NewElevenLabsSynthesizer(&http.Client{}, voice.ElevenLabsConfig{
		APIKey:  cfg.ElevenLabsAPIKey,
		VoiceID: cfg.ElevenLabsVoiceID,
		ModelID: cfg.ElevenLabsModelID,
		Timeout: cfg.SpeechTimeout,
	})
	return voice.NewHandler(transcriber, synthesizer, responder, logger)
}
