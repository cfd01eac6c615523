package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/featden/featd/internal/agent"
	agentclaude "github.com/featden/featd/internal/agent/claude"
	agentfake "github.com/featden/featd/internal/agent/fake"
	"github.com/featden/featd/internal/agent/sandboxhttp"
	"github.com/featden/featd/internal/app/agentsession"
	"github.com/featden/featd/internal/app/build"
	"github.com/featden/featd/internal/app/checkpoint"
	"github.com/featden/featd/internal/app/plan"
	"github.com/featden/featd/internal/app/publish"
	"github.com/featden/featd/internal/app/sandboxlifecycle"
	"github.com/featden/featd/internal/app/session"
	"github.com/featden/featd/internal/config"
	"github.com/featden/featd/internal/httpapi"
	"github.com/featden/featd/internal/model"
	plannerclaude "github.com/featden/featd/internal/planner/claude"
	"github.com/featden/featd/internal/scmhost/github"
	"github.com/featden/featd/internal/storage/sqlite"
	"github.com/featden/featd/internal/workspace"
	dockerworkspace "github.com/featden/featd/internal/workspace/docker"
	workspacefake "github.com/featden/featd/internal/workspace/fake"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddress string
	configPath    string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the orchestration HTTP API server.")
	c.Cmd.Flag("listen-address", "Address the HTTP server listens on.").Default(":8080").StringVar(&c.listenAddress)
	c.Cmd.Flag("config", "Path to the YAML configuration file.").Envar("FEATD_CONFIG").StringVar(&c.configPath)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load configuration.
	cfg := config.Default()
	if c.configPath != "" {
		abs, err := filepath.Abs(c.configPath)
		if err != nil {
			return fmt.Errorf("could not resolve config path: %w", err)
		}
		loaded, err := config.NewYAMLLoader(os.DirFS("/")).Load(ctx, strings.TrimPrefix(abs, "/"))
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
		cfg = loaded
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	// Workspace provider.
	var ws workspace.Provider
	switch model.WorkspaceProviderKind(cfg.Workspace.Provider) {
	case model.WorkspaceProviderKindDocker:
		ws, err = dockerworkspace.NewProvider(dockerworkspace.ProviderConfig{
			DefaultImage: cfg.Workspace.Image,
			Logger:       logger,
		})
	case model.WorkspaceProviderKindFake:
		ws, err = workspacefake.NewProvider(workspacefake.ProviderConfig{Logger: logger})
	default:
		err = fmt.Errorf("unknown workspace provider %q", cfg.Workspace.Provider)
	}
	if err != nil {
		return fmt.Errorf("could not create workspace provider: %w", err)
	}

	// Agent provider. Only the sandbox HTTP backend needs a runtime started
	// inside the workspace, the others drive the sandbox from outside.
	var agentProvider agent.Provider
	var runtimeInstall []string
	switch model.AgentProviderKind(cfg.Agent.Provider) {
	case model.AgentProviderKindSandboxHTTP:
		runtimeInstall = cfg.Agent.RuntimeCommand
		if len(runtimeInstall) == 0 {
			runtimeInstall = []string{"featd-agent", "serve", "--listen", fmt.Sprintf(":%d", sandboxhttp.AgentPort)}
		}
		agentProvider, err = sandboxhttp.NewProvider(sandboxhttp.ProviderConfig{
			Workspace: ws,
			Logger:    logger,
		})
	case model.AgentProviderKindClaude:
		agentProvider, err = agentclaude.NewProvider(agentclaude.ProviderConfig{
			APIKey:    cfg.AnthropicAPIKey(),
			Model:     cfg.AnthropicModel(),
			Workspace: ws,
			Logger:    logger,
		})
	case model.AgentProviderKindFake:
		agentProvider, err = agentfake.NewProvider(agentfake.ProviderConfig{Logger: logger})
	default:
		err = fmt.Errorf("unknown agent provider %q", cfg.Agent.Provider)
	}
	if err != nil {
		return fmt.Errorf("could not create agent provider: %w", err)
	}

	// Planning backend.
	planner, err := plannerclaude.NewPlanner(plannerclaude.PlannerConfig{
		APIKey: cfg.AnthropicAPIKey(),
		Model:  cfg.Planner.Model,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create planner: %w", err)
	}

	// Source host.
	host, err := github.NewHost(github.HostConfig{
		BaseURL: cfg.SCM.APIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create source host client: %w", err)
	}

	// Application services.
	lifecycle, err := sandboxlifecycle.NewService(sandboxlifecycle.ServiceConfig{
		Workspace:             ws,
		Repository:            repo,
		Image:                 cfg.Workspace.Image,
		RuntimeInstallCommand: runtimeInstall,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("could not create sandbox lifecycle service: %w", err)
	}

	sessions, err := session.NewService(session.ServiceConfig{Agent: agentProvider, Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create session service: %w", err)
	}

	plans, err := plan.NewService(plan.ServiceConfig{Planner: planner, Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create plan service: %w", err)
	}

	builds, err := build.NewService(build.ServiceConfig{
		Agent:      agentProvider,
		Lifecycle:  lifecycle,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create build service: %w", err)
	}

	checkpoints, err := checkpoint.NewService(checkpoint.ServiceConfig{Workspace: ws, Lifecycle: lifecycle, Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create checkpoint service: %w", err)
	}

	publisher, err := publish.NewService(publish.ServiceConfig{
		Host:        host,
		Workspace:   ws,
		Repository:  repo,
		SCMHostName: cfg.SCM.Host,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create publish service: %w", err)
	}

	agentControl, err := agentsession.NewService(agentsession.ServiceConfig{Agent: agentProvider, Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create agent session service: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Sessions:     sessions,
		Plans:        plans,
		Builds:       builds,
		Checkpoints:  checkpoints,
		Publisher:    publisher,
		AgentControl: agentControl,
		Lifecycle:    lifecycle,
		Workspace:    ws,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create HTTP server: %w", err)
	}

	srv := &http.Server{
		Addr:    c.listenAddress,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving HTTP API on %s", c.listenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	// Drain the agent backend once no request can reach it anymore.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := agentProvider.Close(closeCtx); err != nil {
		logger.Warningf("Could not drain agent sessions on shutdown: %v", err)
	}

	return nil
}
