package resultcache

import (
	"encoding/json"
	"iter"
	"slices"
	"strconv"
)

// Shape tags the storage form of an Entry.
type Shape string

const (
	// ShapeRegular is an ordered list of rows keyed by index.
	ShapeRegular Shape = "RegularCSV"

	// ShapePrimaryKey is a dictionary of rows keyed by a primary-key field.
	ShapePrimaryKey Shape = "PrimaryKeyCSV"
)

// Row is one record: column name → cell value.
type Row map[string]string

// Entry is one named, immutable result set.
//
// Rows yielded by All and Row are shared with the entry and must not be
// modified by callers.
type Entry struct {
	Type    Shape
	Count   int
	RowKey  string // primary-key field name; empty for ShapeRegular
	Headers []string

	rows  []Row
	keyed map[string]Row
	keys  []string // sorted dictionary keys for deterministic iteration
}

// NewRegularEntry builds a list-shaped entry. Rows are copied.
// A nil headers uses the sorted union of row columns; an empty non-nil
// slice is kept as given.
func NewRegularEntry(rows []Row, headers []string) *Entry {
	cpy := make([]Row, len(rows))
	for i, r := range rows {
		cpy[i] = cloneRow(r)
	}
	if headers == nil {
		headers = deriveHeaders("", cpy)
	}
	return &Entry{
		Type:    ShapeRegular,
		Count:   len(cpy),
		Headers: slices.Clone(headers),
		rows:    cpy,
	}
}

// NewKeyedEntry builds a dictionary-shaped entry keyed on rowKey. Rows are
// copied and every row carries its key under the rowKey column.
func NewKeyedEntry(rowMap map[string]Row, rowKey string, headers []string) *Entry {
	keyed := make(map[string]Row, len(rowMap))
	keys := make([]string, 0, len(rowMap))
	for k, r := range rowMap {
		row := cloneRow(r)
		if rowKey != "" {
			if _, ok := row[rowKey]; !ok {
				row[rowKey] = k
			}
		}
		keyed[k] = row
		keys = append(keys, k)
	}
	slices.Sort(keys)

	if headers == nil {
		rows := make([]Row, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, keyed[k])
		}
		headers = deriveHeaders(rowKey, rows)
	}

	return &Entry{
		Type:    ShapePrimaryKey,
		Count:   len(keyed),
		RowKey:  rowKey,
		Headers: slices.Clone(headers),
		keyed:   keyed,
		keys:    keys,
	}
}

// All yields (rowKey, row) pairs in a stable order regardless of shape.
func (e *Entry) All() iter.Seq2[string, Row] {
	return func(yield func(string, Row) bool) {
		switch e.Type {
		case ShapePrimaryKey:
			for _, k := range e.keys {
				if !yield(k, e.keyed[k]) {
					return
				}
			}
		default:
			for i, r := range e.rows {
				if !yield(strconv.Itoa(i), r) {
					return
				}
			}
		}
	}
}

// Row returns the row stored under rowKey.
func (e *Entry) Row(rowKey string) (Row, bool) {
	if e.Type == ShapePrimaryKey {
		r, ok := e.keyed[rowKey]
		return r, ok
	}
	i, err := strconv.Atoi(rowKey)
	if err != nil || i < 0 || i >= len(e.rows) {
		return nil, false
	}
	return e.rows[i], true
}

// wireEntry is the serialised shape of an Entry.
type wireEntry struct {
	Type    Shape    `json:"type"`
	Count   int      `json:"count"`
	RowKey  string   `json:"row_key"`
	Headers []string `json:"headers"`
	Data    []Row    `json:"data"`
}

// MarshalJSON encodes the entry as {type, count, row_key, headers, data}.
func (e *Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{
		Type:    e.Type,
		Count:   e.Count,
		RowKey:  e.RowKey,
		Headers: e.Headers,
		Data:    make([]Row, 0, e.Count),
	}
	if w.Headers == nil {
		w.Headers = []string{}
	}
	for _, row := range e.All() {
		w.Data = append(w.Data, row)
	}
	return json.Marshal(w)
}

func cloneRow(r Row) Row {
	cpy := make(Row, len(r))
	for k, v := range r {
		cpy[k] = v
	}
	return cpy
}

// deriveHeaders returns rowKey first (if set) then the sorted remaining columns.
func deriveHeaders(rowKey string, rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if k == rowKey {
				continue
			}
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	if rowKey != "" {
		cols = append([]string{rowKey}, cols...)
	}
	return cols
}
