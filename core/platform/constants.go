// Package platform maps the names a database is known by (URL schemes, driver
// names) onto the supported dialects.
package platform

import (
	"strings"

	"github.com/stokaro/schemapush/connector"
)

// NormalizeDialect returns the dialect for a URL scheme or driver name, or ""
// when the name is not recognised.
func NormalizeDialect(name string) connector.Dialect {
	switch strings.ToLower(name) {
	case "pgx", "postgresql", "postgres":
		return connector.Postgres
	case "mysql", "mariadb":
		return connector.MySQL
	case "sqlite", "sqlite3", "file":
		return connector.SQLite
	case "memory":
		return connector.Memory
	default:
		return ""
	}
}
