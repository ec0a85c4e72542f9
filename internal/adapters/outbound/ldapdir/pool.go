// Package ldapdir implements the directory gateway port on go-ldap with a
// fixed-capacity connection pool. The PKD DN layout is fixed: conformant
// material under dc=data, non-conformant under dc=nc-data, one c=<CC> per
// country, one o= per entity kind, cn=<fingerprint> leaves.
package ldapdir

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/ports"
)

// PoolConfig carries the connection settings for the pool.
type PoolConfig struct {
	URL            string
	BindDN         string
	BindPassword   string
	Size           int
	AcquireTimeout time.Duration
}

// Pool is a fixed set of bound LDAP connections. Acquire hands out a
// connection and a release func; holding both scopes the use exactly like
// the defer-release idiom for locks. Broken connections are replaced with a
// fresh bind on release or on acquire.
type Pool struct {
	cfg    PoolConfig
	conns  chan *ldap.Conn
	logger *zap.Logger
}

// NewPool dials and binds cfg.Size connections up front. Startup uses a
// capped exponential backoff per connection so a directory that is still
// coming up does not fail the boot.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		cfg:    cfg,
		conns:  make(chan *ldap.Conn, cfg.Size),
		logger: logger,
	}
	for i := 0; i < cfg.Size; i++ {
		conn, err := p.dialWithRetry(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.conns <- conn
	}
	logger.Info("ldap pool ready", zap.String("url", cfg.URL), zap.Int("size", cfg.Size))
	return p, nil
}

func (p *Pool) dialWithRetry(ctx context.Context) (*ldap.Conn, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	var conn *ldap.Conn
	err := backoff.Retry(func() error {
		var dialErr error
		conn, dialErr = p.dial()
		if dialErr != nil {
			p.logger.Warn("ldap dial failed, retrying", zap.Error(dialErr))
		}
		return dialErr
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrLdapUnreachable, err)
	}
	return conn, nil
}

func (p *Pool) dial() (*ldap.Conn, error) {
	conn, err := ldap.DialURL(p.cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := conn.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Acquire takes a connection from the pool, waiting up to the configured
// timeout. The returned release func must be called exactly once; it hands
// the connection back, replacing it first if it died in use.
func (p *Pool) Acquire(ctx context.Context) (*ldap.Conn, func(), error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.conns:
		if conn == nil || conn.IsClosing() {
			fresh, err := p.dialWithRetry(ctx)
			if err != nil {
				p.conns <- nil // keep capacity accounting intact
				return nil, nil, err
			}
			conn = fresh
		}
		return conn, func() { p.release(conn) }, nil
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w: no connection within %s", ports.ErrPoolExhausted, p.cfg.AcquireTimeout)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (p *Pool) release(conn *ldap.Conn) {
	if conn != nil && conn.IsClosing() {
		conn.Close()
		conn = nil
	}
	p.conns <- conn
}

// Close drains and closes every connection.
func (p *Pool) Close() error {
	for {
		select {
		case conn := <-p.conns:
			if conn != nil {
				conn.Close()
			}
		default:
			return nil
		}
	}
}
