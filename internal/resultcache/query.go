package resultcache

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/deskpilot/internal/result"
)

// IQYWriter writes Excel web-query (.iqy) files pointing at the cache API.
//
// One file per entry is written to <Dir>/<group>/<key>.iqy. Opening it in
// Excel imports the HTML rendering served at
// <BaseURL>/api/v1/cache/<group>/<key>?format=html.
type IQYWriter struct {
	Dir     string
	BaseURL string
}

// SaveExcelQuery implements QueryWriter.
func (w IQYWriter) SaveExcelQuery(group, key string) result.Result {
	if w.Dir == "" {
		return result.Success("")
	}

	dir := filepath.Join(w.Dir, safeFileName(group))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result.FromError(fmt.Errorf("creating query dir: %w", err))
	}

	path := filepath.Join(dir, safeFileName(key)+".iqy")
	if err := os.WriteFile(path, []byte(w.content(group, key)), 0o644); err != nil { //nolint:gosec // query files are meant to be opened by other users
		return result.FromError(fmt.Errorf("writing query file: %w", err))
	}
	return result.Success(path)
}

// URL returns the HTML endpoint for group/key.
func (w IQYWriter) URL(group, key string) string {
	return fmt.Sprintf("%s/api/v1/cache/%s/%s?format=html",
		strings.TrimRight(w.BaseURL, "/"), url.PathEscape(group), url.PathEscape(key))
}

func (w IQYWriter) content(group, key string) string {
	return "WEB\r\n1\r\n" + w.URL(group, key) + "\r\n\r\nSelection=AllTables\r\nFormatting=None\r\n"
}

// safeFileName replaces path separators and other characters that are
// invalid in Windows file names.
func safeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
