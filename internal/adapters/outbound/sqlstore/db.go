// Package sqlstore implements the relational outbound ports on sqlx with two
// interchangeable backends: PostgreSQL (lib/pq) and Oracle (go-ora). Queries
// are written once with ? placeholders and rebound per driver; backend
// differences are isolated in the Dialect.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"          // postgres driver
	_ "github.com/sijms/go-ora/v2" // oracle driver
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/ports"
)

// Config carries the connection settings for Open.
type Config struct {
	Type     string // postgres or oracle
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string // postgres only
	PoolSize int
}

// DB bundles the sqlx handle with its dialect; every store embeds it.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
	logger  *zap.Logger
}

func init() {
	// go-ora registers as "oracle", which sqlx does not know out of the box.
	sqlx.BindDriver("oracle", sqlx.NAMED)
}

// Open connects, pings, and configures the pool. The caller owns Close.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	dialect, err := DialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sqlx.Open(dialect.Name(), dsn(cfg, dialect))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	if cfg.PoolSize > 0 {
		conn.SetMaxOpenConns(cfg.PoolSize)
		conn.SetMaxIdleConns(cfg.PoolSize)
	}
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}

	logger.Info("database connected",
		zap.String("type", dialect.Name()),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
		zap.Int("pool_size", cfg.PoolSize))
	return &DB{conn: conn, dialect: dialect, logger: logger}, nil
}

func dsn(cfg Config, dialect Dialect) string {
	switch dialect.Name() {
	case "postgres":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, sslMode)
	default:
		return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	}
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Dialect exposes the backend dialect (the LDAP-free tests use it too).
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// rebind converts ? placeholders to the driver's style.
func (d *DB) rebind(query string) string {
	return d.conn.Rebind(query)
}
