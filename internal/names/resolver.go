package names

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nerrad567/deskpilot/internal/result"
)

// UnresolvedMessage is the failure message for a name absent from every scope.
const UnresolvedMessage = "unresolved name"

// referencePattern matches <identifier> references inside a string.
var referencePattern = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_.\-]*)>`)

// Resolver is the global name table.
//
// Thread Safety: AddNameValue and the loaders must only be called during
// startup. After that the table is read-only and Resolve/Interpolate are
// safe for concurrent use.
type Resolver struct {
	values map[string]string
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{values: make(map[string]string)}
}

// AddNameValue adds or overwrites a global name.
func (r *Resolver) AddNameValue(key, value string) {
	r.values[key] = value
}

// Len returns the number of global names.
func (r *Resolver) Len() int {
	return len(r.values)
}

// Resolve looks key up in the global table.
func (r *Resolver) Resolve(key string) result.Result {
	if v, ok := r.values[key]; ok {
		return result.Success(v)
	}
	return unresolved(key)
}

// Interpolate substitutes every <identifier> in field from the global table.
func (r *Resolver) Interpolate(field string) result.Result {
	return interpolate(field, r.Resolve)
}

// LocalScope returns a resolver that consults fields before the global table.
func (r *Resolver) LocalScope(fields map[string]any) *Scope {
	return &Scope{global: r, local: fields}
}

// LoadSQLite copies every row of the name_values table into the global table.
func (r *Resolver) LoadSQLite(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM name_values ORDER BY key`)
	if err != nil {
		return 0, fmt.Errorf("querying name_values: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return n, fmt.Errorf("scanning name_values row: %w", err)
		}
		r.AddNameValue(key, value)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterating name_values: %w", err)
	}
	return n, nil
}

// LoadDotenv copies every KEY=value pair of a dotenv file into the global table.
func (r *Resolver) LoadDotenv(path string) (int, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return 0, fmt.Errorf("reading secrets file: %w", err)
	}
	for k, v := range values {
		r.AddNameValue(k, v)
	}
	return len(values), nil
}

// Scope is a resolver bound to one step's field map.
// Scopes are stack-local and must not be shared across goroutines.
type Scope struct {
	global *Resolver
	local  map[string]any
}

// Resolve looks key up in the local fields, then the global table.
func (s *Scope) Resolve(key string) result.Result {
	if v, ok := s.local[key]; ok {
		if str, ok := scalarString(v); ok {
			return result.Success(str)
		}
	}
	return s.global.Resolve(key)
}

// Interpolate substitutes every <identifier> in field, local scope first.
func (s *Scope) Interpolate(field string) result.Result {
	return interpolate(field, s.Resolve)
}

// Close releases the scope. It holds no external resource.
func (s *Scope) Close() {}

func interpolate(field string, resolve func(string) result.Result) result.Result {
	matches := referencePattern.FindAllStringSubmatchIndex(field, -1)
	if len(matches) == 0 {
		return result.Success(field)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		res := resolve(field[m[2]:m[3]])
		if !res.OK {
			return res
		}
		b.WriteString(field[last:m[0]])
		b.WriteString(res.Message)
		last = m[1]
	}
	b.WriteString(field[last:])
	return result.Success(b.String())
}

func unresolved(key string) result.Result {
	return result.Failure("%s: %s", UnresolvedMessage, key)
}

// scalarString renders JSON scalar values; maps and slices are not names.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
