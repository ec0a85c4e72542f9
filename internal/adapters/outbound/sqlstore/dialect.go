package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect abstracts the SQL differences between the two supported backends.
// Queries are written with ? placeholders and rebound through sqlx; the
// dialect covers what rebinding cannot: timestamp functions, boolean
// literals, pagination, and unique-violation detection.
type Dialect interface {
	// Name is the driver name the dialect pairs with ("postgres", "oracle").
	Name() string
	// CurrentTimestamp is the server-side now() expression.
	CurrentTimestamp() string
	// BoolLiteral renders a boolean constant. Oracle stores NUMBER(1).
	BoolLiteral(v bool) string
	// Pagination renders the trailing limit/offset clause.
	Pagination(limit, offset int) string
	// IsUniqueViolation reports whether err is a unique-constraint breach.
	IsUniqueViolation(err error) bool
}

// DialectFor resolves a dialect by database type.
func DialectFor(dbType string) (Dialect, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return postgresDialect{}, nil
	case "oracle":
		return oracleDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) CurrentTimestamp() string { return "NOW()" }

func (postgresDialect) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (postgresDialect) Pagination(limit, offset int) string {
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type oracleDialect struct{}

func (oracleDialect) Name() string             { return "oracle" }
func (oracleDialect) CurrentTimestamp() string { return "SYSTIMESTAMP" }

func (oracleDialect) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (oracleDialect) Pagination(limit, offset int) string {
	return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (oracleDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ORA-00001")
}
