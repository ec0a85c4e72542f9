package sqlstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sufield/pkdpa/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the embedded DDL. PostgreSQL only: the statements use
// IF NOT EXISTS, so repeated startup is safe. Oracle installations manage
// their schema externally.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if d.dialect.Name() != "postgres" {
		return nil
	}
	for _, chunk := range strings.Split(schemaSQL, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt == "" {
			continue
		}
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: applying schema: %v", ports.ErrStoreUnavailable, err)
		}
	}
	return nil
}
