package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Nyukimin/patchgate/internal/adapter/admin"
	"github.com/Nyukimin/patchgate/internal/adapter/config"
	"github.com/Nyukimin/patchgate/internal/application/autoland"
	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/internal/application/retention"
	"github.com/Nyukimin/patchgate/internal/domain/llm"
	"github.com/Nyukimin/patchgate/internal/domain/patch"
	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/internal/infrastructure/git"
	"github.com/Nyukimin/patchgate/internal/infrastructure/llm/claude"
	"github.com/Nyukimin/patchgate/internal/infrastructure/llm/openai"
	"github.com/Nyukimin/patchgate/internal/infrastructure/notify"
	store "github.com/Nyukimin/patchgate/internal/infrastructure/persistence/proposal"
	"github.com/Nyukimin/patchgate/pkg/health"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const component = "main"

func main() {
	if err := run(); err != nil {
		logger.ErrorCF(component, "server.exit", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// 設定ファイルパス
	flags := pflag.NewFlagSet("patchgate", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", getConfigPath(), "path to config.yaml (optional)")
	flags.Parse(os.Args[1:])

	// 設定読み込み
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Configure(os.Stderr, logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logger.InfoCF(component, "config.loaded", map[string]interface{}{
		"path":     *configPath,
		"repo":     cfg.Repo.Path,
		"store":    cfg.Store.Path,
		"driver":   cfg.Store.Driver,
		"prefixes": cfg.Policy.AllowedPrefixes,
	})

	// 依存関係構築
	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := deps.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCF(component, "retention.stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	// HTTPサーバー起動
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           deps.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF(component, "server.start", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.InfoC(component, "server.shutdown")
	deps.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	deps.notifier.Wait()
	return nil
}

// Dependencies はアプリケーション依存関係
type Dependencies struct {
	handler  http.Handler
	events   *admin.EventHub
	notifier *notify.Fanout
	sweeper  *retention.Sweeper
	closers  []io.Closer
}

// Close は保持しているリソースを解放
func (d *Dependencies) Close() {
	for _, c := range d.closers {
		c.Close()
	}
}

// buildDependencies は依存関係を構築
func buildDependencies(cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// 1. Proposal Store
	repo, err := buildStore(cfg, deps)
	if err != nil {
		return nil, err
	}

	// 2. Working tree
	tree := git.NewGateway(cfg.Repo.Path, cfg.Repo.CommandTimeout)

	// 3. Event sinks
	deps.events = admin.NewEventHub()
	deps.notifier = buildNotifier(cfg)

	// 4. Pipeline
	policy := patch.Policy{
		AllowedPrefixes: cfg.Policy.AllowedPrefixes,
		MaxPatchBytes:   cfg.Policy.MaxPatchBytes,
	}
	p := pipeline.New(tree, repo, policy,
		pipeline.WithEventSink(deps.events),
		pipeline.WithEventSink(deps.notifier),
	)

	// 5. Auto-land
	author := buildAuthor(cfg)
	auto := autoland.NewService(author, p, cfg.Policy.AllowedPrefixes, cfg.Author.MaxTokens)

	// 6. Retention
	maxCount := 0
	if cfg.Retention.MaxCount != nil {
		maxCount = *cfg.Retention.MaxCount
	}
	deps.sweeper, err = retention.NewSweeper(repo, cfg.Retention.Schedule, cfg.Retention.MaxAge, maxCount)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create retention sweeper: %w", err)
	}

	// 7. Health checks
	checker := health.NewChecker()
	checker.Register("git", health.BinaryCheck("git"))
	checker.Register("repo", health.DirCheck(cfg.Repo.Path))
	checker.Register("store", health.WritableDirCheck(filepath.Dir(cfg.Store.Path)))
	if cfg.Author.Provider == "openai" {
		checker.Register("author", health.HTTPCheck(cfg.Author.BaseURL, 5*time.Second))
	}

	// 8. Adapter (admin HTTP)
	deps.handler = admin.NewHandler(p, cfg.Auth.Token,
		admin.WithAutoLander(auto),
		admin.WithHealthChecker(checker),
		admin.WithEventHub(deps.events),
		admin.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	)

	logger.InfoC(component, "dependency injection complete")
	return deps, nil
}

func buildStore(cfg *config.Config, deps *Dependencies) (proposal.Repository, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		repo, err := store.NewSQLiteProposalRepository(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		deps.closers = append(deps.closers, repo)
		return repo, nil
	default:
		return store.NewJSONProposalRepository(cfg.Store.Path), nil
	}
}

func buildAuthor(cfg *config.Config) llm.LLMProvider {
	a := cfg.Author
	switch a.Provider {
	case "openai":
		logger.InfoCF(component, "author.enabled", map[string]interface{}{"provider": "openai", "model": a.Model})
		return openai.NewOpenAIProvider(openai.Options{
			BaseURL:              a.BaseURL,
			APIKey:               a.APIKey,
			Model:                a.Model,
			AgentID:              a.AgentID,
			SessionKey:           a.SessionKey,
			CFAccessClientID:     a.CFAccessClientID,
			CFAccessClientSecret: a.CFAccessClientSecret,
			Timeout:              a.Timeout,
		})
	case "anthropic":
		logger.InfoCF(component, "author.enabled", map[string]interface{}{"provider": "anthropic", "model": a.Model})
		return claude.NewClaudeProvider(claude.Options{
			APIKey:  a.APIKey,
			Model:   a.Model,
			BaseURL: a.BaseURL,
			Timeout: a.Timeout,
		})
	default:
		return nil
	}
}

func buildNotifier(cfg *config.Config) *notify.Fanout {
	var channels []notify.Channel
	n := cfg.Notify

	if n.Slack.Token != "" && n.Slack.Channel != "" {
		channels = append(channels, notify.NewSlackChannel(n.Slack.Token, n.Slack.Channel, ""))
	}
	if n.Discord.Token != "" && n.Discord.ChannelID != "" {
		ch, err := notify.NewDiscordChannel(n.Discord.Token, n.Discord.ChannelID, nil)
		if err != nil {
			logger.WarnCF(component, "notify.discord_disabled", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, ch)
		}
	}
	if n.Telegram.Token != "" && n.Telegram.ChatID != 0 {
		ch, err := notify.NewTelegramChannel(n.Telegram.Token, n.Telegram.ChatID, "")
		if err != nil {
			logger.WarnCF(component, "notify.telegram_disabled", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, ch)
		}
	}

	for _, ch := range channels {
		logger.InfoCF(component, "notify.enabled", map[string]interface{}{"channel": ch.Name()})
	}
	return notify.NewFanout(notify.DefaultSendTimeout, channels...)
}

// getConfigPath は設定ファイルパスのデフォルトを取得
func getConfigPath() string {
	if path := os.Getenv("PATCHGATE_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}
