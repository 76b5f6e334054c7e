package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudebox/claudebox/internal/container"
	"github.com/claudebox/claudebox/internal/naming"
	"github.com/claudebox/claudebox/internal/sandbox"
	"github.com/claudebox/claudebox/internal/session"
)

var (
	runBuild        bool
	runBuildContext string
	runNoPersist    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a sandboxed assistant session",
	Long: "Start a sandboxed assistant session. Launches the container with the project\n" +
		"mounted, attaches an interactive shell, and persists session transcripts into\n" +
		"the project when the session ends.",
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runBuild, "build", false, "build the sandbox image before starting")
	runCmd.Flags().StringVar(&runBuildContext, "build-context", ".", "docker build context for --build")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "skip transcript persistence on exit")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := sandbox.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("claudebox run: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg.Container.Name = naming.ContainerName(cfg.ProjectDir, time.Now())
	cfg.Container.Env = append(cfg.Container.Env, sessionEnv(cfg)...)

	logger.Info("starting session",
		"version", buildVersion,
		"name", cfg.Container.Name,
		"project", cfg.ProjectDir,
	)

	mgr := container.NewManager(cfg.Container, logger)

	if runBuild {
		if err := mgr.BuildImage(ctx, runBuildContext); err != nil {
			return fmt.Errorf("claudebox run: %w", err)
		}
	}

	if err := mgr.Run(ctx); err != nil {
		return fmt.Errorf("claudebox run: %w", err)
	}
	defer func() {
		if err := mgr.Remove(context.Background()); err != nil {
			logger.Warn("container cleanup failed", "error", err)
		}
	}()

	sessionErr := mgr.Session(ctx)
	if sessionErr != nil {
		logger.Warn("session ended with error", "error", sessionErr)
	}

	if !runNoPersist {
		store := session.NewStore(cfg.Session, cfg.ProjectDir, logger)
		copied, err := store.Persist(context.Background())
		if err != nil {
			return fmt.Errorf("claudebox run: persist transcripts: %w", err)
		}
		logger.Info("session persisted", "transcripts", copied)
	}

	return sessionErr
}

// sessionEnv builds the environment passed into the container so the
// in-container firewall init and the assistant see the database settings.
func sessionEnv(cfg *sandbox.Config) []string {
	var env []string
	if cfg.DB.Server != "" {
		env = append(env,
			"CLAUDEBOX_DB_HOST="+cfg.DB.Server,
			"CLAUDEBOX_DB_PORT="+strconv.Itoa(cfg.DB.Port),
		)
		if cfg.DB.Database != "" {
			env = append(env, "CLAUDEBOX_DB_NAME="+cfg.DB.Database)
		}
		if cfg.DB.User != "" {
			env = append(env, "CLAUDEBOX_DB_USER="+cfg.DB.User)
		}
	}
	if cfg.Firewall.AllowWeb {
		env = append(env, "CLAUDEBOX_ALLOW_WEB=on")
	}
	return env
}
