package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudebox/claudebox/internal/sandbox"
	"github.com/claudebox/claudebox/internal/session"
)

var (
	compactMaxSize  int
	compactKeepLast int
	compactDryRun   bool
	compactOutput   string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted session transcripts",
}

var sessionPersistCmd = &cobra.Command{
	Use:   "persist",
	Short: "Copy transcripts into the project and commit them",
	RunE:  runSessionPersist,
}

var sessionCompactCmd = &cobra.Command{
	Use:   "compact <session.jsonl>",
	Short: "Shrink a transcript by truncating large tool results",
	Long: "Shrink a transcript file by truncating large tool result content while\n" +
		"preserving conversation flow. Thinking blocks and user/assistant text are\n" +
		"never modified. The original is kept as a .jsonl.bak file.",
	Args: cobra.ExactArgs(1),
	RunE: runSessionCompact,
}

func init() {
	sessionCompactCmd.Flags().IntVar(&compactMaxSize, "max-content-size", session.DefaultMaxContentSize,
		"max size for tool result strings before truncation")
	sessionCompactCmd.Flags().IntVar(&compactKeepLast, "keep-last", 0, "keep only the last N messages")
	sessionCompactCmd.Flags().BoolVar(&compactDryRun, "dry-run", false, "report sizes without writing")
	sessionCompactCmd.Flags().StringVarP(&compactOutput, "output", "o", "", "output file (default: rewrite input)")

	sessionCmd.AddCommand(sessionPersistCmd, sessionCompactCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionPersist(cmd *cobra.Command, _ []string) error {
	cfg, err := sandbox.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("claudebox session persist: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := setupLogger(cfg.LogLevel)

	store := session.NewStore(cfg.Session, cfg.ProjectDir, logger)
	copied, err := store.Persist(cmd.Context())
	if err != nil {
		return fmt.Errorf("claudebox session persist: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "persisted %d transcript(s)\n", copied)
	return nil
}

func runSessionCompact(cmd *cobra.Command, args []string) error {
	logger := setupLogger(logLevelOrDefault())

	c := session.NewCompactor(session.CompactOptions{
		MaxContentSize: compactMaxSize,
		KeepLast:       compactKeepLast,
		DryRun:         compactDryRun,
		Output:         compactOutput,
	}, logger)

	stats, err := c.Compact(args[0])
	if err != nil {
		return fmt.Errorf("claudebox session compact: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Original:  %.1f MB (%d messages)\n",
		float64(stats.OriginalBytes)/1024/1024, stats.OriginalMessages)
	fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %.1f MB (%d messages)\n",
		float64(stats.Bytes)/1024/1024, stats.Messages)
	if stats.OriginalBytes > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Reduction: %.1f%%\n",
			(1-float64(stats.Bytes)/float64(stats.OriginalBytes))*100)
	}
	if compactDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "[dry run] no changes written")
	}
	return nil
}

func logLevelOrDefault() string {
	if logLevel != "" {
		return logLevel
	}
	return sandbox.DefaultLogLevel
}
