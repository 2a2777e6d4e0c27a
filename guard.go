// file: guard.go
package dbconnector

import (
	"errors"
	"fmt"
	"strings"
)

// Statement guards applied by every connector before touching the wire.
// The query layer above performs its own whitelist validation; these checks
// stand on their own so a connector handed raw SQL stays read-only.

var readOnlyKeywords = map[string]struct{}{
	"SELECT": {},
	"WITH":   {},
}

var writeKeywords = map[string]struct{}{
	"SELECT": {},
	"WITH":   {},
	"INSERT": {},
	"UPDATE": {},
	"DELETE": {},
}

func validateReadOnlyQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query is empty")
	}
	if err := rejectChainedStatements(query); err != nil {
		return err
	}
	kw := firstKeyword(query)
	if _, ok := readOnlyKeywords[kw]; !ok {
		return fmt.Errorf("statement %q is not a read query", kw)
	}
	return nil
}

func validateWriteStatement(query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("statement is empty")
	}
	if err := rejectChainedStatements(query); err != nil {
		return err
	}
	kw := firstKeyword(query)
	if _, ok := writeKeywords[kw]; !ok {
		return fmt.Errorf("statement %q is not allowed in a transaction", kw)
	}
	return nil
}

// rejectChainedStatements refuses any ; that is not a single trailing
// terminator. A ; inside a bound value never reaches the SQL text, so the
// scan stays byte-level.
func rejectChainedStatements(query string) error {
	trimmed := strings.TrimRight(strings.TrimSpace(query), "; \t\n\r")
	if strings.ContainsRune(trimmed, ';') {
		return errors.New("chained statements are not allowed")
	}
	return nil
}

func firstKeyword(query string) string {
	s := strings.TrimSpace(query)
	for {
		if strings.HasPrefix(s, "--") {
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = strings.TrimSpace(s[nl+1:])
			continue
		}
		if strings.HasPrefix(s, "/*") {
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = strings.TrimSpace(s[end+2:])
			continue
		}
		break
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(s[:end])
}
