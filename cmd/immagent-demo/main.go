package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/config"
	"github.com/kgk9000/immagent/observability"
	"github.com/kgk9000/immagent/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		return
	}
	observability.InitLogger("", cfg.LogLevel)

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.ObsConfig())
		if err != nil {
			fmt.Printf("init otel: %v\n", err)
			return
		}
		defer func() { _ = shutdown(context.Background()) }()
		observability.EnableOTelLogBridge(cfg.ServiceName)
	}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.Connect(ctx, cfg.DatabaseURL,
			store.WithPoolSize(cfg.DBPoolMinSize, cfg.DBPoolMaxSize, time.Hour, cfg.MaxConnIdleTime()),
			store.WithLLMConfig(cfg.LLMConfig()),
		)
		if err != nil {
			fmt.Printf("connect: %v\n", err)
			return
		}
		defer st.Close()
		if err := st.InitSchema(ctx); err != nil {
			fmt.Printf("init schema: %v\n", err)
			return
		}
	} else {
		st = store.NewMemoryStore(store.WithLLMConfig(cfg.LLMConfig()))
	}

	a, err := st.CreateAgent(ctx, "demo-assistant", "You are a concise, helpful assistant.", cfg.DefaultModel, nil, nil)
	if err != nil {
		fmt.Printf("create agent: %v\n", err)
		return
	}
	fmt.Printf("created agent %s (%s)\n", a.Name, a.ID)

	updated, err := a.Advance(ctx, "What's the capital of France?", agent.AdvanceOptions{
		MaxToolRounds:  cfg.LLMMaxToolRounds,
		MaxRetries:     cfg.LLMMaxRetries,
		TimeoutSeconds: cfg.LLMTimeoutSeconds,
	})
	if err != nil {
		fmt.Printf("advance: %v\n", err)
		return
	}

	msgs, err := st.GetMessages(ctx, *updated)
	if err != nil {
		fmt.Printf("get messages: %v\n", err)
		return
	}
	for _, m := range msgs {
		content := ""
		if m.Content != nil {
			content = *m.Content
		}
		fmt.Printf("[%s] %s\n", m.Role, content)
	}
}
