package service

import (
	"fmt"
	"strings"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// DefaultPKGlue joins the parts of a composite primary key.
const DefaultPKGlue = "_"

// KeyResolver derives gallery keys from owner primary keys. Values that
// contain the glue make composite keys ambiguous; callers choose a glue that
// cannot occur in their key values.
type KeyResolver struct {
	Glue string
}

// NewKeyResolver creates a resolver. An empty glue selects DefaultPKGlue.
func NewKeyResolver(glue string) KeyResolver {
	if glue == "" {
		glue = DefaultPKGlue
	}
	return KeyResolver{Glue: glue}
}

// Resolve returns the gallery key of pk: the string form of a scalar key,
// or the glued string forms of a composite key's values in column order.
func (r KeyResolver) Resolve(pk domain.PrimaryKey) string {
	parts := make([]string, len(pk))
	for i, p := range pk {
		parts[i] = fmt.Sprint(p.Value)
	}
	return strings.Join(parts, r.Glue)
}

// Split reverses Resolve for a gallery key received from a client, pairing
// the glued values with the owner's primary key columns. Keys are used as
// directory names, so path separators and dot segments are rejected.
func (r KeyResolver) Split(galleryKey string, columns []string) (domain.PrimaryKey, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no primary key columns", domain.ErrInvalidInput)
	}

	if galleryKey == "." || galleryKey == ".." || strings.ContainsAny(galleryKey, `/\`) {
		return nil, fmt.Errorf("%w: gallery key %q", domain.ErrInvalidInput, galleryKey)
	}

	var values []string
	if len(columns) == 1 {
		values = []string{galleryKey}
	} else {
		values = strings.Split(galleryKey, r.Glue)
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("%w: gallery key %q has %d parts, want %d",
			domain.ErrInvalidInput, galleryKey, len(values), len(columns))
	}

	pk := make(domain.PrimaryKey, len(columns))
	for i, col := range columns {
		if values[i] == "" || values[i] == "." || values[i] == ".." {
			return nil, fmt.Errorf("%w: invalid primary key part %q", domain.ErrInvalidInput, col)
		}
		pk[i] = domain.KeyPart{Column: col, Value: values[i]}
	}
	return pk, nil
}
