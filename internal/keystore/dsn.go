package keystore

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// DatabaseFile is the SQLite file created inside the data directory.
const DatabaseFile = "keygate.db"

// SQLiteDSN returns the DSN for the embedded store. An empty dataDir gives an
// in-memory database.
func SQLiteDSN(dataDir string) string {
	if dataDir == "" {
		return ":memory:?_journal_mode=WAL"
	}
	return filepath.Join(dataDir, DatabaseFile) + "?_journal_mode=WAL&_busy_timeout=5000"
}

// SanitizeDSN normalizes a DSN for the given driver.
//
// URL-style DSNs (postgres://, sqlserver://) get their userinfo
// percent-encoded so passwords containing @, # or % survive URL parsing.
// MySQL DSNs are rewritten to the tcp() form go-sql-driver requires, with
// parseTime enabled and UTC as the location so timestamps scan into
// time.Time. Other drivers are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	d, err := lookupDialect(driver)
	if err != nil {
		return dsn
	}
	switch d.name {
	case "postgres", "mssql":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" with no tcp() wrapper.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

func sanitizeMySQLDSN(dsn string) string {
	candidates := []string{dsn}

	// user:pass@(host:port)/db is missing the "tcp" keyword.
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		candidates = append(candidates, dsn[:idx]+"@tcp"+dsn[idx+1:])
	}
	// user:pass@host:port/db has no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		candidates = append(candidates, m[1]+"@tcp("+m[2]+")"+m[3])
	}

	for _, c := range candidates {
		cfg, err := mysqldriver.ParseDSN(c)
		if err != nil || (cfg.Net != "tcp" && cfg.Net != "unix") {
			continue
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN()
	}
	return dsn
}

func sanitizeURLDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	// Unescape first so an already-encoded password is not encoded twice.
	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if p, err := url.PathUnescape(pass); err == nil {
		pass = p
	}

	return scheme + "://" + url.PathEscape(user) + ":" + url.PathEscape(pass) + "@" + hostpath + query
}

// RedactDSN hides the password of a URL-style or MySQL DSN for display.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
		return dsn
	}
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
		return cfg.FormatDSN()
	}
	return dsn
}
