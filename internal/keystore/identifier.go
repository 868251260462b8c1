package keystore

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex matches table names that are safe to quote and interpolate
// into DDL on every supported dialect.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedWords cannot be used as the key table name.
var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"UNION": true, "FROM": true, "WHERE": true, "TABLE": true,
	"INDEX": true, "VIEW": true, "USER": true, "ORDER": true,
}

// ValidateTableName rejects table names that are empty, longer than 30
// characters (the Oracle limit), not plain identifiers, or reserved words.
func ValidateTableName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("table name cannot be empty")
	}
	if len(name) > 30 {
		return fmt.Errorf("table name too long (max 30 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if reservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("table name %q is a SQL reserved word", name)
	}
	return nil
}
