package functions

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/nerrad567/deskpilot/internal/resultcache"
)

// newCacheObject exposes cache to JavaScript as:
//
//	cache.insert(group, key, rows, columns)
//	cache.insertKeyed(group, key, rowMap, rowKeyName, columns)
//	cache.get(group, key) → {type, count, row_key, headers, data} | null
//
// Insert failures are thrown as exceptions.
func newCacheObject(vm *goja.Runtime, cache Cache) goja.Value {
	obj := vm.NewObject()
	if cache == nil {
		return obj
	}

	_ = obj.Set("insert", func(call goja.FunctionCall) goja.Value {
		rows, err := toRows(call.Argument(2).Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		res := cache.Insert(call.Argument(0).String(), call.Argument(1).String(), rows, toStrings(call.Argument(3).Export()))
		if !res.OK {
			panic(vm.NewGoError(res.Err()))
		}
		return goja.Undefined()
	})

	_ = obj.Set("insertKeyed", func(call goja.FunctionCall) goja.Value {
		rowMap, err := toRowMap(call.Argument(2).Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		res := cache.InsertKeyed(call.Argument(0).String(), call.Argument(1).String(), rowMap,
			call.Argument(3).String(), toStrings(call.Argument(4).Export()))
		if !res.OK {
			panic(vm.NewGoError(res.Err()))
		}
		return goja.Undefined()
	})

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		e := cache.GetCacheEntry(call.Argument(0).String(), call.Argument(1).String())
		if e == nil {
			return goja.Null()
		}
		data, err := json.Marshal(e)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(plain)
	})

	return obj
}

func toRows(v any) ([]resultcache.Row, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("rows must be an array, got %T", v)
	}
	rows := make([]resultcache.Row, 0, len(list))
	for i, item := range list {
		row, err := toRow(item)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRowMap(v any) (map[string]resultcache.Row, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("row map must be an object, got %T", v)
	}
	out := make(map[string]resultcache.Row, len(m))
	for k, item := range m {
		row, err := toRow(item)
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", k, err)
		}
		out[k] = row
	}
	return out, nil
}

func toRow(v any) (resultcache.Row, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("row must be an object, got %T", v)
	}
	row := make(resultcache.Row, len(m))
	for k, cell := range m {
		if cell == nil {
			row[k] = ""
			continue
		}
		row[k] = fmt.Sprint(cell)
	}
	return row, nil
}

func toStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
