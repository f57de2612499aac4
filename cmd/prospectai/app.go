package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/prospectai/internal/aiservice"
	"github.com/ignite/prospectai/internal/browserpool"
	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/emailfinder"
	"github.com/ignite/prospectai/internal/emailsender"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/llm"
	"github.com/ignite/prospectai/internal/notifier"
	"github.com/ignite/prospectai/internal/orchestrator"
	"github.com/ignite/prospectai/internal/pkg/distlock"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/ratelimit"
	"github.com/ignite/prospectai/internal/scrapers"
	"github.com/ignite/prospectai/internal/store"
)

// app bundles every long-lived collaborator a CLI subcommand needs. It
// is built once per invocation from the loaded Config.
type app struct {
	cfg    *config.Config
	deps   orchestrator.Dependencies
	store  *store.Store
	sender *domain.SenderProfile
}

// buildApp wires every subsystem from cfg, in the dependency order each
// constructor requires: rate limiter and cache first, then the
// adapters that consume them, then the scrapers and AI service, and
// finally the orchestrator's Dependencies bundle.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.Redis.URL)})

	limiter := ratelimit.New(redisClient, cfg.RateLimits.Services)
	httpClient := httpclient.New(limiter, cfg.Worker.StageTimeout())

	appCache, err := cache.NewFromConfig(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("app: build cache: %w", err)
	}

	st := store.New(cfg.Store, appCache)

	registry := llm.NewRegistry(cfg)
	aiSvc := aiservice.New(registry, appCache, cfg)

	var pool *browserpool.Pool
	if cfg.Browser.Enabled {
		pool, err = browserpool.New(cfg.Browser)
		if err != nil {
			return nil, fmt.Errorf("app: build browser pool: %w", err)
		}
	}

	productFeed := scrapers.NewProductFeed(httpClient, cfg.Scraping)
	teamExtractor := scrapers.NewTeamExtractor(httpClient, pool, cfg.Scraping, cfg.Browser)
	profileFinder := scrapers.NewProfileFinder(httpClient, appCache, cfg.Scraping)
	finder := emailfinder.New(httpClient, appCache, cfg.EmailFinder)

	var sender *emailsender.Sender
	if cfg.Email.AutoSendEmails {
		sender, err = emailsender.New(ctx, cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("app: build email sender: %w", err)
		}
	}

	var senderProfile *domain.SenderProfile
	if cfg.SenderProfilePath != "" {
		senderProfile, err = config.LoadSenderProfile(cfg.SenderProfilePath)
		if err != nil {
			return nil, fmt.Errorf("app: load sender profile: %w", err)
		}
	}

	lock := distlock.NewLock(redisClient, "campaign", time.Hour)

	deps := orchestrator.Dependencies{
		ProductFeed:   productFeed,
		TeamExtractor: teamExtractor,
		ProfileFinder: profileFinder,
		EmailFinder:   finder,
		AIService:     aiSvc,
		EmailSender:   sender,
		Store:         st,
		HTTPClient:    httpClient,
		RateLimiter:   limiter,
		Lock:          lock,
		Sender:        senderProfile,
		Notifier:      notifier.New(st, cfg.Features.Notifications),
	}

	return &app{cfg: cfg, deps: deps, store: st, sender: senderProfile}, nil
}

func redisAddr(url string) string {
	const prefix = "redis://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

func init() {
	logger.SetRedactPII(true)
}
