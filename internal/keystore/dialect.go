package keystore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"
)

func init() {
	// go-ora expects :1, :2 style parameters; sqlx does not know the driver.
	sqlx.BindDriver("oracle", sqlx.NAMED)
}

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	name       string // config name: sqlite, postgres, mysql, mssql, oracle
	driverName string // database/sql driver name
	trueLit    string
	falseLit   string

	// upperFolds is set for databases that fold unquoted identifiers to upper
	// case, so result columns need explicit lower-case aliases.
	upperFolds bool

	quote      func(name string) string
	paginate   func(limit, offset int) (string, []interface{})
	migrations func(table string) []string // bare table name
}

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteBracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func limitOffset(limit, offset int) (string, []interface{}) {
	return "LIMIT ? OFFSET ?", []interface{}{limit, offset}
}

func offsetFetch(limit, offset int) (string, []interface{}) {
	return "OFFSET ? ROWS FETCH NEXT ? ROWS ONLY", []interface{}{offset, limit}
}

var dialects = map[string]*dialect{
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		trueLit:    "1",
		falseLit:   "0",
		quote:      quoteDouble,
		paginate:   limitOffset,
		migrations: sqliteMigrations,
	},
	"postgres": {
		name:       "postgres",
		driverName: "pgx",
		trueLit:    "TRUE",
		falseLit:   "FALSE",
		quote:      quoteDouble,
		paginate:   limitOffset,
		migrations: postgresMigrations,
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		trueLit:    "TRUE",
		falseLit:   "FALSE",
		quote:      quoteBacktick,
		paginate:   limitOffset,
		migrations: mysqlMigrations,
	},
	"mssql": {
		name:       "mssql",
		driverName: "sqlserver",
		trueLit:    "1",
		falseLit:   "0",
		quote:      quoteBracket,
		paginate:   offsetFetch,
		migrations: mssqlMigrations,
	},
	"oracle": {
		name:       "oracle",
		driverName: "oracle",
		trueLit:    "1",
		falseLit:   "0",
		upperFolds: true,
		quote:      quoteDouble,
		paginate:   offsetFetch,
		migrations: oracleMigrations,
	},
}

var driverAliases = map[string]string{
	"":           "sqlite",
	"sqlite3":    "sqlite",
	"postgresql": "postgres",
	"pgx":        "postgres",
	"sqlserver":  "mssql",
	"ora":        "oracle",
}

// Drivers returns the supported driver names, sorted.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Supported reports whether driver, or an alias of it, can back a store.
func Supported(driver string) bool {
	_, err := lookupDialect(driver)
	return err == nil
}

func lookupDialect(driver string) (*dialect, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := driverAliases[name]; ok {
		name = alias
	}
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", driver, Drivers())
	}
	return d, nil
}

// columns renders the select list for the keys table.
func (d *dialect) columns() string {
	cols := []string{"id", "key_string", "is_active", "created_at", "expires_at",
		"redeemed_at", "redeemed_by", "redeemed_ip", "redeemed_hwid"}
	if d.upperFolds {
		for i, c := range cols {
			cols[i] = c + " AS " + d.quote(c)
		}
	}
	return strings.Join(cols, ", ")
}

// isDuplicate reports whether err is a unique constraint violation.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2627 || msErr.Number == 2601
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry") ||
		strings.Contains(lower, "violation of unique")
}

// isAlreadyApplied reports whether a migration error means the object it
// creates is already present.
func isAlreadyApplied(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "duplicate column") ||
		strings.Contains(lower, "already exists") ||
		strings.Contains(lower, "there is already an object named") ||
		strings.Contains(lower, "ora-00955") ||
		strings.Contains(lower, "ora-01430")
}
