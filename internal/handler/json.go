package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// maxJSONBody bounds request bodies of the JSON endpoints.
const maxJSONBody = 1 << 20

// writeJSON sends a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write JSON response", "error", err)
	}
}

// writeError sends a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given destination.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst)
}

// readOrder decodes {"order":{"<id>":<sort|null>,...}} keeping the key order
// of the document, which decides how sort values are handed out.
func readOrder(r io.Reader) ([]domain.SortEntry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var order []domain.SortEntry
	found := false
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if key != "order" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		found = true
		if order, err = readOrderObject(dec); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: missing order", domain.ErrInvalidInput)
	}
	return order, expectDelim(dec, '}')
}

func readOrderObject(dec *json.Decoder) ([]domain.SortEntry, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var order []domain.SortEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(tok.(string), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: image id %q", domain.ErrInvalidInput, tok)
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		sort, err := sortValue(raw)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", id, err)
		}
		order = append(order, domain.SortEntry{ID: id, Sort: sort})
	}
	return order, expectDelim(dec, '}')
}

// sortValue accepts a number or numeric string. null, false and "" mean no
// value was given.
func sortValue(raw any) (*int64, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: sort value true", domain.ErrInvalidInput)
	case json.Number:
		s = v.String()
	case string:
		if s = strings.TrimSpace(v); s == "" {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: sort value of type %T", domain.ErrInvalidInput, raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: sort value %q", domain.ErrInvalidInput, s)
	}
	return &n, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q", domain.ErrInvalidInput, want)
	}
	return nil
}
