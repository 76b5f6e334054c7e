package dbutil

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

// Open opens a connection pool for the configured server. The connection is
// verified with a ping so misconfiguration surfaces immediately.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("dbutil: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbutil: connect to %s:%d: %w", cfg.Server, cfg.Port, err)
	}
	return db, nil
}

// TestConnection runs SELECT @@VERSION and returns the server version line.
func TestConnection(ctx context.Context, db *sql.DB, logger *slog.Logger) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", fmt.Errorf("dbutil: query version: %w", err)
	}
	if i := strings.IndexByte(version, '\n'); i > 0 {
		version = version[:i]
	}
	version = strings.TrimSpace(version)
	logger.Info("connected", "version", version)
	return version, nil
}

// SchemaExists reports whether the named schema exists.
func SchemaExists(ctx context.Context, db *sql.DB, schema string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.schemas WHERE name = @p1", schema).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dbutil: schema exists: %w", err)
	}
	return count > 0, nil
}

// TableExists reports whether schema.table exists.
func TableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sys.tables t
		 JOIN sys.schemas s ON t.schema_id = s.schema_id
		 WHERE s.name = @p1 AND t.name = @p2`, schema, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dbutil: table exists: %w", err)
	}
	return count > 0, nil
}

// CreateSchema creates the schema if it does not already exist.
func CreateSchema(ctx context.Context, db *sql.DB, schema string, logger *slog.Logger) error {
	if err := validIdent(schema); err != nil {
		return err
	}
	exists, err := SchemaExists(ctx, db, schema)
	if err != nil {
		return err
	}
	if exists {
		logger.Info("schema already exists", "schema", schema)
		return nil
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA "+quoteIdent(schema)); err != nil {
		return fmt.Errorf("dbutil: create schema %s: %w", schema, err)
	}
	logger.Info("schema created", "schema", schema)
	return nil
}

// DropSchema drops the schema. With cascade, all tables in the schema are
// dropped first. Dropping a non-existent schema is a no-op.
func DropSchema(ctx context.Context, db *sql.DB, schema string, cascade bool, logger *slog.Logger) error {
	if err := validIdent(schema); err != nil {
		return err
	}
	exists, err := SchemaExists(ctx, db, schema)
	if err != nil {
		return err
	}
	if !exists {
		logger.Info("schema does not exist, nothing to drop", "schema", schema)
		return nil
	}

	if cascade {
		rows, err := db.QueryContext(ctx,
			`SELECT t.name FROM sys.tables t
			 JOIN sys.schemas s ON t.schema_id = s.schema_id
			 WHERE s.name = @p1`, schema)
		if err != nil {
			return fmt.Errorf("dbutil: list tables in %s: %w", schema, err)
		}
		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("dbutil: scan table name: %w", err)
			}
			tables = append(tables, name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("dbutil: list tables in %s: %w", schema, err)
		}
		rows.Close()

		for _, table := range tables {
			if err := validIdent(table); err != nil {
				return err
			}
			stmt := "DROP TABLE " + quoteIdent(schema) + "." + quoteIdent(table)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("dbutil: drop table %s.%s: %w", schema, table, err)
			}
			logger.Info("table dropped", "schema", schema, "table", table)
		}
	}

	if _, err := db.ExecContext(ctx, "DROP SCHEMA "+quoteIdent(schema)); err != nil {
		return fmt.Errorf("dbutil: drop schema %s: %w", schema, err)
	}
	logger.Info("schema dropped", "schema", schema)
	return nil
}

// validIdent rejects identifiers that cannot be bracket-quoted safely.
func validIdent(name string) error {
	if name == "" {
		return fmt.Errorf("dbutil: empty identifier")
	}
	if strings.ContainsAny(name, "[]") {
		return fmt.Errorf("dbutil: invalid identifier %q", name)
	}
	return nil
}

// quoteIdent bracket-quotes a SQL Server identifier. Callers must run
// validIdent first.
func quoteIdent(name string) string {
	return "[" + name + "]"
}
