// carbot-console はヘッドユニットなしでアシスタントと対話するローカルREPL
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carvoice/carbot/internal/adapter/config"
	"github.com/carvoice/carbot/internal/application/assistant"
	"github.com/carvoice/carbot/internal/application/bus"
	"github.com/carvoice/carbot/internal/domain/car"
	domainllm "github.com/carvoice/carbot/internal/domain/llm"
	"github.com/carvoice/carbot/internal/infrastructure/cache"
	ruleintent "github.com/carvoice/carbot/internal/infrastructure/intent"
	infrallm "github.com/carvoice/carbot/internal/infrastructure/llm"
	"github.com/carvoice/carbot/internal/infrastructure/reliability"
	"github.com/carvoice/carbot/internal/infrastructure/session"
	"github.com/carvoice/carbot/pkg/logging"
)

func main() {
	configPath := os.Getenv("CARBOT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// REPLの表示を邪魔しないよう警告以上のみ出す
	logging.Setup("warn", cfg.Log.Format)

	asst, err := buildAssistant(cfg)
	if err != nil {
		logrus.Fatalf("Failed to build assistant: %v", err)
	}

	rl, err := readline.New("carbot> ")
	if err != nil {
		logrus.Fatalf("Failed to init readline: %v", err)
	}
	defer rl.Close()

	sessionID := uuid.NewString()
	fresh := false
	state := car.State{}

	fmt.Println("CarBot console. Type a command, or /fresh, /state, /quit.")

	for {
		line, err := rl.Readline()
		if err != nil {
			// Ctrl-D / Ctrl-C
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return

		case line == "/fresh":
			fresh = !fresh
			fmt.Printf("fresh mode: %v\n", fresh)
			continue

		case line == "/state":
			// デモ用の固定走行状態を切り替える
			if state.IsZero() {
				state = car.State{
					Speed:            60,
					Destination:      "Shibuya Station",
					NavigationActive: true,
					MusicPlaying:     true,
					CurrentSong:      "Night Drive",
				}
				fmt.Println("car state: driving demo snapshot")
			} else {
				state = car.State{}
				fmt.Println("car state: cleared")
			}
			continue
		}

		resp := asst.Process(context.Background(), assistant.Request{
			SessionID: sessionID,
			Command:   line,
			CarState:  state,
			Fresh:     fresh,
		})

		fmt.Println(resp.Text)

		tags := []string{"intent=" + resp.Intent.String()}
		if resp.Provider != "" {
			tags = append(tags, "provider="+resp.Provider)
		}
		if resp.Cached {
			tags = append(tags, "cached")
		}
		if resp.Fallback {
			tags = append(tags, "fallback")
		}
		fmt.Printf("  [%s]\n", strings.Join(tags, " "))

		for _, action := range resp.Actions {
			fmt.Printf("  -> action: %s\n", action.Type)
		}
	}
}

// buildAssistant は設定からアシスタントを組み立てる
func buildAssistant(cfg *config.Config) (*assistant.Assistant, error) {
	registry := infrallm.NewRegistry()

	providers := make([]domainllm.Provider, 0, len(cfg.ProviderOrder))
	for _, id := range cfg.ProviderOrder {
		providerCfg, err := registry.Get(id)
		if err != nil {
			return nil, err
		}

		if !cfg.UsableProvider(id) {
			continue
		}

		settings := cfg.Providers[id]
		if settings.BaseURL != "" {
			providerCfg.BaseURL = settings.BaseURL
		}

		providers = append(providers, infrallm.NewHTTPProvider(providerCfg, settings.APIKey, settings.Model, cfg.Retry.Timeout()))
	}

	breaker := reliability.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown())
	caller := reliability.NewCaller(breaker, cfg.Retry.MaxRetries, cfg.Retry.BackoffBase(), cfg.Retry.BackoffCap())

	return assistant.New(
		providers,
		caller,
		cache.New(cfg.Cache.TTL(), cfg.Cache.MaxEntries),
		ruleintent.NewRuleDictionary(),
		session.NewStore(cfg.Conversation.MaxTurns),
		bus.New(),
		assistant.GenerationOptions{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
		},
	), nil
}
