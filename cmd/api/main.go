package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ideaforge/internal/clarify"
	"ideaforge/internal/config"
	"ideaforge/internal/eventbus"
	"ideaforge/internal/iterate"
	"ideaforge/internal/llm"
	"ideaforge/internal/server"
	"ideaforge/internal/store"
	"ideaforge/internal/verify"
	"ideaforge/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := llm.ChainFromEnv(ctx, cfg.LLMTimeout)
	if err != nil {
		log.Fatalf("llm chain: %v", err)
	}
	// Each retry attempt crosses the whole provider chain; the rate
	// limiter and chain timeout sit inside the retry so every attempt is
	// throttled and bounded on its own.
	client := llm.Wrap(gateway,
		llm.Retry(3, 500*time.Millisecond),
		llm.RateLimit(cfg.LLMRPS, cfg.LLMBurst),
		llm.Timeout(cfg.LLMChainTimeout),
		llm.Logged(),
	)
	defer client.Close()

	catalog, err := clarify.NewCatalog()
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	st := store.NewFromEnv(cfg.StorePath)
	defer st.Close()

	var archive *store.ArchiveStore
	if cfg.Archive.Enabled {
		archive, err = store.NewArchiveStore(store.ArchiveConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Printf("archive disabled: %v", err)
			archive = nil
		}
	}

	bus := eventbus.New(1000)

	clarifier := clarify.New(catalog, client, st, clarify.Config{
		IdleTimeout:  cfg.ClarifyIdleTimeout,
		StrictFinish: cfg.StrictClarify,
	})
	iterator := iterate.New(client, iterate.Config{})
	verifier, err := verify.New(client, verify.NullSource{}, verify.Config{
		Strict: cfg.StrictVerify,
	})
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	orch := workflow.New(clarifier, iterator, verifier, st, archive, bus, workflow.Config{
		Policy: iterate.PolicyConfig{
			MaxRounds:      cfg.MaxRounds,
			MinImprovement: cfg.MinImprovement,
			StagnantRounds: cfg.StagnantRounds,
		},
	})

	api := server.NewAPI(orch, bus)
	srv := server.New(cfg.Port, api.Routes())

	go func() {
		<-ctx.Done()
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
	orch.Wait()
}
