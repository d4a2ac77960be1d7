package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/carvoice/carbot/internal/adapter/config"
	"github.com/carvoice/carbot/internal/adapter/httpapi"
	"github.com/carvoice/carbot/internal/application/assistant"
	"github.com/carvoice/carbot/internal/application/bus"
	domainllm "github.com/carvoice/carbot/internal/domain/llm"
	"github.com/carvoice/carbot/internal/infrastructure/cache"
	ruleintent "github.com/carvoice/carbot/internal/infrastructure/intent"
	infrallm "github.com/carvoice/carbot/internal/infrastructure/llm"
	"github.com/carvoice/carbot/internal/infrastructure/reliability"
	"github.com/carvoice/carbot/internal/infrastructure/session"
	"github.com/carvoice/carbot/pkg/logging"
)

func main() {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	logrus.WithField("path", configPath).Info("Loaded config")

	deps, err := buildDependencies(cfg)
	if err != nil {
		logrus.Fatalf("Failed to build dependencies: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logrus.WithField("addr", addr).Info("Starting CarBot server")

	if err := http.ListenAndServe(addr, deps.handler); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

// getConfigPath は設定ファイルパスを決定
func getConfigPath() string {
	if path := os.Getenv("CARBOT_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

// Dependencies はアプリケーション依存関係
type Dependencies struct {
	handler http.Handler
}

// buildDependencies は依存関係を構築
// グローバル状態は持たず、ここで組み立てたものを参照で引き回す
func buildDependencies(cfg *config.Config) (*Dependencies, error) {
	// 1. Provider Registry
	registry := infrallm.NewRegistry()

	// 2. LLM Providers（設定順・キー未設定はスキップ）
	providers := make([]domainllm.Provider, 0, len(cfg.ProviderOrder))
	for _, id := range cfg.ProviderOrder {
		providerCfg, err := registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("provider_order entry %q: %w", id, err)
		}

		if !cfg.UsableProvider(id) {
			continue
		}

		settings := cfg.Providers[id]
		if settings.BaseURL != "" {
			providerCfg.BaseURL = settings.BaseURL
		}

		provider := infrallm.NewHTTPProvider(providerCfg, settings.APIKey, settings.Model, cfg.Retry.Timeout())
		providers = append(providers, provider)
		logrus.WithFields(logrus.Fields{
			"provider": id,
			"model":    provider.Model(),
		}).Info("Provider enabled")
	}

	// 3. Reliability（リトライ＋ブレーカー）
	breaker := reliability.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown())
	caller := reliability.NewCaller(breaker, cfg.Retry.MaxRetries, cfg.Retry.BackoffBase(), cfg.Retry.BackoffCap())

	// 4. Cache / Rules / Sessions / Events
	responseCache := cache.New(cfg.Cache.TTL(), cfg.Cache.MaxEntries)
	rules := ruleintent.NewRuleDictionary()
	sessions := session.NewStore(cfg.Conversation.MaxTurns)
	events := bus.New()

	// 5. Assistant
	asst := assistant.New(providers, caller, responseCache, rules, sessions, events, assistant.GenerationOptions{
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
	})

	// 6. HTTP front door
	streamer := httpapi.NewEventStreamer(events)
	handler := httpapi.NewHandler(asst, breaker, streamer)

	return &Dependencies{handler: handler}, nil
}
