// Package config binds the environment variable surface and validates it.
// Binding and validation are separate steps so tests can construct configs
// directly and main can fail fast on a bad environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sufield/pkdpa/internal/ports"
)

// Config is the complete environment surface of the service.
type Config struct {
	// Relational store. DBType selects the backend; the ORACLE_* variables
	// override the generic DB_* ones when the backend is oracle.
	DBType     string `envconfig:"DB_TYPE" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBName     string `envconfig:"DB_NAME" default:"pkd"`
	DBUser     string `envconfig:"DB_USER" default:"pkd"`
	DBPassword string `envconfig:"DB_PASSWORD"`

	OracleHost        string `envconfig:"ORACLE_HOST"`
	OraclePort        int    `envconfig:"ORACLE_PORT" default:"1521"`
	OracleServiceName string `envconfig:"ORACLE_SERVICE_NAME"`
	OracleUser        string `envconfig:"ORACLE_USER"`
	OraclePassword    string `envconfig:"ORACLE_PASSWORD"`

	DBPoolMin     int           `envconfig:"DB_POOL_MIN" default:"2"`
	DBPoolMax     int           `envconfig:"DB_POOL_MAX" default:"10"`
	DBPoolTimeout time.Duration `envconfig:"DB_POOL_TIMEOUT" default:"5s"`

	LDAPHost           string        `envconfig:"LDAP_HOST" default:"localhost"`
	LDAPPort           int           `envconfig:"LDAP_PORT" default:"389"`
	LDAPBindDN         string        `envconfig:"LDAP_BIND_DN" default:"cn=admin,dc=pkd,dc=local"`
	LDAPBindPassword   string        `envconfig:"LDAP_BIND_PASSWORD"`
	LDAPBaseDN         string        `envconfig:"LDAP_BASE_DN" default:"dc=pkd,dc=local"`
	LDAPNetworkTimeout time.Duration `envconfig:"LDAP_NETWORK_TIMEOUT" default:"5s"`
	LDAPPoolSize       int           `envconfig:"LDAP_POOL_SIZE" default:"5"`

	ServerPort    int `envconfig:"SERVER_PORT" default:"8080"`
	ThreadNum     int `envconfig:"THREAD_NUM" default:"0"`
	MaxBodySizeMB int `envconfig:"MAX_BODY_SIZE_MB" default:"16"`

	// DevMode runs on the in-memory adapters, no DB or LDAP needed.
	DevMode bool `envconfig:"DEV_MODE" default:"false"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load binds the environment. Call Validate separately.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the mandatory settings. Missing credentials abort
// startup; dev mode needs neither backend.
func (c *Config) Validate() error {
	if c.DevMode {
		return nil
	}
	var missing []string
	if c.effectiveDBPassword() == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.LDAPBindPassword == "" {
		missing = append(missing, "LDAP_BIND_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrConfigMissing, strings.Join(missing, ", "))
	}
	switch strings.ToLower(c.DBType) {
	case "postgres", "postgresql", "oracle":
	default:
		return fmt.Errorf("%w: unsupported DB_TYPE %q", ports.ErrConfigMissing, c.DBType)
	}
	return nil
}

func (c *Config) effectiveDBPassword() string {
	if strings.ToLower(c.DBType) == "oracle" && c.OraclePassword != "" {
		return c.OraclePassword
	}
	return c.DBPassword
}

// DatabaseHost resolves the backend-specific host.
func (c *Config) DatabaseHost() string {
	if strings.ToLower(c.DBType) == "oracle" && c.OracleHost != "" {
		return c.OracleHost
	}
	return c.DBHost
}

// DatabasePort resolves the backend-specific port.
func (c *Config) DatabasePort() int {
	if strings.ToLower(c.DBType) == "oracle" && c.OracleHost != "" {
		return c.OraclePort
	}
	return c.DBPort
}

// DatabaseName resolves the database or Oracle service name.
func (c *Config) DatabaseName() string {
	if strings.ToLower(c.DBType) == "oracle" && c.OracleServiceName != "" {
		return c.OracleServiceName
	}
	return c.DBName
}

// DatabaseUser resolves the backend-specific user.
func (c *Config) DatabaseUser() string {
	if strings.ToLower(c.DBType) == "oracle" && c.OracleUser != "" {
		return c.OracleUser
	}
	return c.DBUser
}

// DatabasePassword resolves the backend-specific password.
func (c *Config) DatabasePassword() string {
	return c.effectiveDBPassword()
}

// LDAPURL renders the directory URL for go-ldap.
func (c *Config) LDAPURL() string {
	return fmt.Sprintf("ldap://%s:%d", c.LDAPHost, c.LDAPPort)
}
