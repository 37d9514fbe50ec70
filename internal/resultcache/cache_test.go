package resultcache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/deskpilot/internal/result"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type mockQueryWriter struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (m *mockQueryWriter) SaveExcelQuery(group, key string) result.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, group+"/"+key)
	if m.fail {
		return result.Failure("disk full")
	}
	return result.Success("")
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestCache_InsertAndGet(t *testing.T) {
	qw := &mockQueryWriter{}
	c := New(qw)

	rows := []Row{{"id": "1", "name": "a"}, {"id": "2", "name": "b"}}
	if res := c.Insert("orders", "open", rows, []string{"id", "name"}); !res.OK {
		t.Fatalf("Insert: %s", res.Message)
	}

	e := c.GetCacheEntry("orders", "open")
	if e == nil {
		t.Fatal("GetCacheEntry returned nil")
	}
	if e.Type != ShapeRegular || e.Count != 2 {
		t.Errorf("entry = %s/%d, want RegularCSV/2", e.Type, e.Count)
	}
	if r, ok := e.Row("1"); !ok || r["name"] != "b" {
		t.Errorf("Row(1) = %v, %v", r, ok)
	}

	// Mutating the caller's rows must not leak into the cache.
	rows[0]["name"] = "changed"
	if r, _ := e.Row("0"); r["name"] != "a" {
		t.Errorf("entry aliased caller rows: %v", r)
	}

	if len(qw.calls) != 1 || qw.calls[0] != "orders/open" {
		t.Errorf("query writer calls = %v", qw.calls)
	}

	if c.GetCacheEntry("orders", "closed") != nil {
		t.Error("missing key should return nil")
	}
	if c.GetCacheEntry("nope", "open") != nil {
		t.Error("missing group should return nil")
	}
}

func TestCache_InsertHeaders(t *testing.T) {
	rows := []Row{{"b": "2", "a": "1"}}
	tests := []struct {
		name    string
		columns []string
		want    []string
	}{
		{"given", []string{"b", "a"}, []string{"b", "a"}},
		{"empty kept", []string{}, []string{}},
		{"nil derived", nil, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			if res := c.Insert("g", "k", rows, tt.columns); !res.OK {
				t.Fatalf("Insert: %s", res.Message)
			}
			got := c.GetCacheEntry("g", "k").Headers
			if !slices.Equal(got, tt.want) || got == nil {
				t.Errorf("Headers = %#v, want %#v", got, tt.want)
			}

			if res := c.InsertKeyed("g", "keyed", map[string]Row{"x": {"a": "1"}}, "id", tt.columns); !res.OK {
				t.Fatalf("InsertKeyed: %s", res.Message)
			}
			if tt.columns != nil {
				if got := c.GetCacheEntry("g", "keyed").Headers; !slices.Equal(got, tt.columns) {
					t.Errorf("keyed Headers = %#v, want %#v", got, tt.columns)
				}
			}
		})
	}
}

func TestCache_InsertReplaces(t *testing.T) {
	c := New(nil)
	c.Insert("g", "k", []Row{{"a": "1"}}, nil)
	c.Insert("g", "k", []Row{{"a": "2"}, {"a": "3"}}, nil)

	e := c.GetCacheEntry("g", "k")
	if e.Count != 2 {
		t.Errorf("Count = %d, want 2", e.Count)
	}
}

func TestCache_InsertKeyed(t *testing.T) {
	c := New(nil)
	rowMap := map[string]Row{
		"B-2": {"qty": "5"},
		"A-1": {"qty": "3", "sku": "A-1"},
	}
	if res := c.InsertKeyed("stock", "today", rowMap, "sku", nil); !res.OK {
		t.Fatalf("InsertKeyed: %s", res.Message)
	}

	e := c.GetCacheEntry("stock", "today")
	if e.Type != ShapePrimaryKey || e.RowKey != "sku" {
		t.Errorf("entry = %s/%s", e.Type, e.RowKey)
	}
	if want := []string{"sku", "qty"}; strings.Join(e.Headers, ",") != strings.Join(want, ",") {
		t.Errorf("Headers = %v, want %v", e.Headers, want)
	}

	var keys []string
	for k, row := range e.All() {
		keys = append(keys, k)
		if row["sku"] != k {
			t.Errorf("row %s carries sku %q", k, row["sku"])
		}
	}
	if strings.Join(keys, ",") != "A-1,B-2" {
		t.Errorf("iteration order = %v", keys)
	}

	if res := c.InsertKeyed("stock", "x", rowMap, "", nil); res.OK {
		t.Error("InsertKeyed without row key name should fail")
	}
}

func TestCache_InsertRejectsEmptyAddress(t *testing.T) {
	c := New(nil)
	if res := c.Insert("", "k", nil, nil); res.OK {
		t.Error("empty group accepted")
	}
	if res := c.Insert("g", "", nil, nil); res.OK {
		t.Error("empty key accepted")
	}
	if c.HasChanged() {
		t.Error("rejected insert marked the cache changed")
	}
}

func TestCache_ChangedFlag(t *testing.T) {
	c := New(nil)
	if c.HasChanged() {
		t.Fatal("new cache reports changed")
	}

	c.Insert("g", "k", []Row{{"a": "1"}}, nil)
	if !c.HasChanged() {
		t.Fatal("insert did not set changed")
	}

	first := c.SerializeAndResetChanged(false)
	if !c.HasChanged() {
		t.Error("reset=false cleared the flag")
	}

	second := c.SerializeAndResetChanged(true)
	if c.HasChanged() {
		t.Error("reset=true left the flag set")
	}
	if first != second {
		t.Error("serialisation is not deterministic")
	}

	c.Insert("g", "k2", nil, []string{"a"})
	if !c.HasChanged() {
		t.Error("insert after reset did not set changed")
	}
}

func TestCache_QueryWriterFailureDoesNotFailInsert(t *testing.T) {
	c := New(&mockQueryWriter{fail: true})
	if res := c.Insert("g", "k", []Row{{"a": "1"}}, nil); !res.OK {
		t.Errorf("Insert failed on query writer error: %s", res.Message)
	}
}

func TestCache_SerializeShape(t *testing.T) {
	c := New(nil)
	c.Insert("orders", "open", []Row{{"id": "1"}}, []string{"id"})
	c.InsertKeyed("stock", "today", map[string]Row{"A": {"qty": "3"}}, "sku", []string{"sku", "qty"})

	var got map[string]map[string]struct {
		Type    string              `json:"type"`
		Count   int                 `json:"count"`
		RowKey  string              `json:"row_key"`
		Headers []string            `json:"headers"`
		Data    []map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(c.SerializeAndResetChanged(true)), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	open := got["orders"]["open"]
	if open.Type != "RegularCSV" || open.Count != 1 || open.Data[0]["id"] != "1" {
		t.Errorf("orders/open = %+v", open)
	}
	today := got["stock"]["today"]
	if today.Type != "PrimaryKeyCSV" || today.RowKey != "sku" || today.Data[0]["sku"] != "A" {
		t.Errorf("stock/today = %+v", today)
	}
}

func TestCache_EmptyEntrySerializesEmptyArrays(t *testing.T) {
	c := New(nil)
	c.Insert("g", "k", nil, nil)
	out := c.SerializeAndResetChanged(false)
	if !strings.Contains(out, `"headers":[]`) || !strings.Contains(out, `"data":[]`) {
		t.Errorf("serialised = %s", out)
	}
}

func TestCache_ConcurrentInserts(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Insert("g", string(rune('a'+i)), []Row{{"i": "x"}}, nil)
			_ = c.SerializeAndResetChanged(i%2 == 0)
		}(i)
	}
	wg.Wait()

	if n := len(c.Keys()["g"]); n != 20 {
		t.Errorf("keys = %d, want 20", n)
	}
}

func TestRenderHTML(t *testing.T) {
	e := NewRegularEntry([]Row{{"name": "<b>x</b>", "qty": "2"}}, []string{"name", "qty"})
	var buf bytes.Buffer
	if err := RenderHTML(&buf, "orders/open", e); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<th>name</th><th>qty</th>") {
		t.Errorf("missing header row:\n%s", out)
	}
	if strings.Contains(out, "<b>x</b>") {
		t.Error("cell content was not escaped")
	}
	if !strings.Contains(out, "<td>2</td>") {
		t.Errorf("missing cell:\n%s", out)
	}
}

func TestWriteCSV(t *testing.T) {
	e := NewKeyedEntry(map[string]Row{
		"2": {"name": "b, c"},
		"1": {"name": "a"},
	}, "id", nil)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, e); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "id,name\n1,a\n2,\"b, c\"\n"
	if buf.String() != want {
		t.Errorf("WriteCSV = %q, want %q", buf.String(), want)
	}
}

func TestIQYWriter(t *testing.T) {
	dir := t.TempDir()
	w := IQYWriter{Dir: dir, BaseURL: "http://127.0.0.1:8080/"}

	res := w.SaveExcelQuery("orders", "open/today")
	if !res.OK {
		t.Fatalf("SaveExcelQuery: %s", res.Message)
	}

	path := filepath.Join(dir, "orders", "open_today.iqy")
	if res.Message != path {
		t.Errorf("path = %q, want %q", res.Message, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "WEB\r\n1\r\nhttp://127.0.0.1:8080/api/v1/cache/orders/open%2Ftoday?format=html") {
		t.Errorf("content = %q", data)
	}

	if res := (IQYWriter{}).SaveExcelQuery("g", "k"); !res.OK {
		t.Error("writer without a directory should be a no-op")
	}
}
