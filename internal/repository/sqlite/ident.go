package sqlite

import (
	"fmt"
	"regexp"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// Table and column names come from configuration and cannot be bound as
// parameters, so they are restricted to plain identifiers before quoting.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: identifier %q", domain.ErrInvalidInput, name)
	}
	return `"` + name + `"`, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
