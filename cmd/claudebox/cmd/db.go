package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/claudebox/claudebox/internal/dbutil"
	"github.com/claudebox/claudebox/internal/sandbox"
	"github.com/claudebox/claudebox/internal/terminal"
)

var (
	dbSchema   string
	dbTable    string
	dbCSV      string
	dbQuery    string
	dbTruncate bool
	dbFile1    string
	dbFile2    string
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities for integration workflows",
	Long: "Database utilities for the sandboxed project: connection checks, CSV\n" +
		"import/export, result comparison, and schema cleanup.",
}

var dbTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the database connection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			version, err := dbutil.TestConnection(ctx, db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", version)
			return nil
		})
	},
}

var dbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV file into a table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			if err := dbutil.CreateSchema(ctx, db, dbSchema, logger); err != nil {
				return err
			}
			rows, err := dbutil.ImportCSV(ctx, db, dbCSV, dbSchema, dbTable,
				dbutil.ImportOptions{CreateTable: true, Truncate: dbTruncate}, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d row(s) into %s.%s\n", rows, dbSchema, dbTable)
			return nil
		})
	},
}

var dbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a table or query to CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			rows, err := dbutil.ExportCSV(ctx, db, dbSchema, dbTable, dbCSV, dbQuery, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d row(s) to %s\n", rows, dbCSV)
			return nil
		})
	},
}

var dbCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two CSV files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		match, diffs, err := dbutil.CompareCSV(dbFile1, dbFile2)
		if err != nil {
			return fmt.Errorf("claudebox db compare: %w", err)
		}
		if match {
			fmt.Fprintln(cmd.OutOrStdout(), "files match")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "files differ:")
		const maxShown = 10
		for i, d := range diffs {
			if i == maxShown {
				fmt.Fprintf(cmd.OutOrStdout(), "  ... and %d more difference(s)\n", len(diffs)-maxShown)
				break
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
		}
		return fmt.Errorf("claudebox db compare: %d difference(s)", len(diffs))
	},
}

var dbDropSchemaCmd = &cobra.Command{
	Use:   "drop-schema",
	Short: "Drop a schema and all its objects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
			return dbutil.DropSchema(ctx, db, dbSchema, true, logger)
		})
	},
}

func init() {
	dbImportCmd.Flags().StringVar(&dbCSV, "csv", "", "CSV file path")
	dbImportCmd.Flags().StringVar(&dbSchema, "schema", "", "target schema")
	dbImportCmd.Flags().StringVar(&dbTable, "table", "", "target table")
	dbImportCmd.Flags().BoolVar(&dbTruncate, "truncate", false, "truncate the table before loading")
	_ = dbImportCmd.MarkFlagRequired("csv")
	_ = dbImportCmd.MarkFlagRequired("schema")
	_ = dbImportCmd.MarkFlagRequired("table")

	dbExportCmd.Flags().StringVar(&dbCSV, "csv", "", "output CSV path")
	dbExportCmd.Flags().StringVar(&dbSchema, "schema", "", "source schema")
	dbExportCmd.Flags().StringVar(&dbTable, "table", "", "source table")
	dbExportCmd.Flags().StringVar(&dbQuery, "query", "", "custom query instead of a table")
	_ = dbExportCmd.MarkFlagRequired("csv")

	dbCompareCmd.Flags().StringVar(&dbFile1, "file1", "", "first CSV file")
	dbCompareCmd.Flags().StringVar(&dbFile2, "file2", "", "second CSV file")
	_ = dbCompareCmd.MarkFlagRequired("file1")
	_ = dbCompareCmd.MarkFlagRequired("file2")

	dbDropSchemaCmd.Flags().StringVar(&dbSchema, "schema", "", "schema to drop")
	_ = dbDropSchemaCmd.MarkFlagRequired("schema")

	dbCmd.AddCommand(dbTestCmd, dbImportCmd, dbExportCmd, dbCompareCmd, dbDropSchemaCmd)
	rootCmd.AddCommand(dbCmd)
}

// withDB loads config, opens a verified connection, and runs fn with it.
// A missing password is prompted for interactively.
func withDB(ctx context.Context, fn func(context.Context, *sql.DB, *slog.Logger) error) error {
	cfg, err := sandbox.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("claudebox db: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := setupLogger(cfg.LogLevel)

	if cfg.DB.Password == "" {
		pw, err := terminal.ReadPassword(fmt.Sprintf("password for %s@%s: ", cfg.DB.User, cfg.DB.Server))
		if err != nil {
			return fmt.Errorf("claudebox db: %w", err)
		}
		cfg.DB.Password = pw
	}

	db, err := dbutil.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("claudebox db: %w", err)
	}
	defer db.Close()

	return fn(ctx, db, logger)
}
