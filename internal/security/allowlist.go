package security

import "strings"

type Allowlist struct {
	Tables []string
}

// AllowsTable reports whether a report may target the table. An empty
// allowlist admits every user table; system tables are always refused.
func (a Allowlist) AllowsTable(table string) bool {
	if IsSystemTable(table) {
		return false
	}
	if len(a.Tables) == 0 {
		return true
	}
	for _, t := range a.Tables {
		if t == table {
			return true
		}
	}
	return false
}

var systemPrefixes = []string{
	"system.",
	"information_schema.",
	"pg_catalog.",
	"pg_",
	"sys.",
	"mysql.",
}

func IsSystemTable(table string) bool {
	lower := strings.ToLower(table)
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
