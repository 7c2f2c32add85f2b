// Package db contains code for connecting to the database.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stacklok/view-exporter/internal/config"
)

const (
	defaultSSLMode        = "disable"
	defaultConnectTimeout = 10 * time.Second
)

// Session wraps the single database connection used by the listener
type Session struct {
	conn *pgx.Conn
}

// ConnString builds the connection string for the local database.
// Only unix domain sockets are used, so the identity is the sole credential.
func ConnString(cfg *config.DatabaseConfig, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("database user is required")
	}
	socketDir := cfg.GetSocketDir()
	if !filepath.IsAbs(socketDir) {
		return "", fmt.Errorf("socket directory must be an absolute path, got %s", socketDir)
	}

	return fmt.Sprintf(
		"host=%s user=%s dbname=%s sslmode=%s connect_timeout=%d",
		quoteConnValue(socketDir),
		quoteConnValue(identity),
		quoteConnValue(cfg.GetDatabase()),
		defaultSSLMode,
		int(defaultConnectTimeout.Seconds()),
	), nil
}

// Connect opens a session on the local database as identity
func Connect(ctx context.Context, cfg *config.DatabaseConfig, identity string) (*Session, error) {
	connStr, err := ConnString(cfg, identity)
	if err != nil {
		return nil, err
	}

	connCfg, err := parseLocalConfig(connStr)
	if err != nil {
		return nil, err
	}

	session, err := connectConfig(ctx, connCfg)
	if err != nil {
		return nil, err
	}

	slog.Info("Database connection established",
		"user", identity,
		"socket_dir", cfg.GetSocketDir(),
		"database", cfg.GetDatabase())

	return session, nil
}

// Open opens a session using a raw connection string.
// Unlike Connect it accepts any transport; tests use it against a container.
func Open(ctx context.Context, connStr string) (*Session, error) {
	connCfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	return connectConfig(ctx, connCfg)
}

// parseLocalConfig parses connStr and holds it to unix sockets without a password.
// pgx fills the password from PGPASSWORD or the passfile, so it is cleared after parsing.
func parseLocalConfig(connStr string) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	if !isSocketHost(connCfg.Host) {
		return nil, fmt.Errorf("database host %s is not a unix socket directory", connCfg.Host)
	}
	connCfg.Password = ""

	for _, fb := range connCfg.Fallbacks {
		if !isSocketHost(fb.Host) {
			return nil, fmt.Errorf("database host %s is not a unix socket directory", fb.Host)
		}
		fb.Password = ""
	}

	return connCfg, nil
}

func isSocketHost(host string) bool {
	return strings.HasPrefix(host, "/")
}

func connectConfig(ctx context.Context, connCfg *pgx.ConnConfig) (*Session, error) {
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Session{conn: conn}, nil
}

// SetTimeZone sets the session time zone
func (s *Session) SetTimeZone(ctx context.Context, tz string) error {
	if _, err := s.conn.Exec(ctx, "SET TIME ZONE "+quoteLiteral(tz)); err != nil {
		return fmt.Errorf("failed to set time zone %s: %w", tz, err)
	}
	return nil
}

// Listen subscribes the session to channel
func (s *Session) Listen(ctx context.Context, channel string) error {
	if _, err := s.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives or ctx is done.
// An expired deadline leaves the connection usable.
func (s *Session) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return s.conn.WaitForNotification(ctx)
}

// Query runs sql and returns the resulting rows
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

// Close closes the underlying connection
func (s *Session) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// quoteConnValue quotes a keyword/value connection string value
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// quoteLiteral quotes a SQL string literal
func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
