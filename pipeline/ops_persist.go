package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cast"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

func (in *Interpreter) store(ctx context.Context, f *Frame, s *Step) (Store, error) {
	if in.stores == nil {
		return nil, missing(s, "store")
	}
	return in.stores.Store(ctx, f.SiteID)
}

func (in *Interpreter) opStore(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	st, err := in.store(ctx, f, s)
	if err != nil {
		return nil, err
	}
	table := s.Key
	if table == "" {
		table = s.Table
	}
	if table == "" {
		return nil, invalid(s, "key (table name) is required")
	}

	switch s.Method {
	case "put":
		return nil, st.Put(ctx, f.ExtractorID, table, input)
	case "putMany":
		rows, ok := jsonpath.Slice(input)
		if !ok {
			return nil, invalid(s, "putMany input is %T, not a sequence", input)
		}
		failed, err := st.PutMany(ctx, f.ExtractorID, table, rows)
		if errors.Is(err, models.ErrStorePartialFailure) {
			slog.Warn("store: bulk write partially failed",
				"site", f.SiteID, "table", table, "failed", failed, "total", len(rows), "error", err)
			in.log.Log(fmt.Sprintf("%s: %d of %d rows failed to save", table, failed, len(rows)))
			return nil, nil
		}
		return nil, err
	}
	return nil, invalid(s, "unknown method %q", s.Method)
}

// opTableJoin copies fields from rows of a stored table into the input rows
// whose left key equals the stored row's right key. Rows without a partner
// are logged and dropped.
func (in *Interpreter) opTableJoin(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	rows, ok := jsonpath.Slice(input)
	if !ok {
		return nil, invalid(s, "input is %T, not a sequence", input)
	}
	st, err := in.store(ctx, f, s)
	if err != nil {
		return nil, err
	}
	right, err := jsonpath.Parse(s.RightKey)
	if err != nil {
		return nil, err
	}
	left, err := jsonpath.Parse(s.LeftKey)
	if err != nil {
		return nil, err
	}
	table, err := st.GetAll(ctx, s.Table)
	if err != nil {
		return nil, fmt.Errorf("table_join: read %s: %w", s.Table, err)
	}

	index := make(map[string]any, len(table))
	for _, row := range table {
		index[joinKey(right.Get(row, nil))] = row
	}

	fields := slices.Sorted(maps.Keys(s.Fields))
	result := []any{}
	for _, row := range rows {
		lv := left.Get(row, nil)
		partner, ok := index[joinKey(lv)]
		if !ok || !jsonpath.Truthy(partner) {
			in.log.Log(fmt.Sprintf("join %s: no row with %s = %s", s.Table, s.RightKey, jsonpath.Stringify(lv)))
			continue
		}
		src, ok := row.(map[string]any)
		if !ok {
			return nil, invalid(s, "row is %T, not an object", row)
		}
		var o any = maps.Clone(src)
		for _, key := range fields {
			v, err := jsonpath.Get(partner, s.Fields[key])
			if err != nil {
				return nil, err
			}
			if o, err = jsonpath.Set(o, key, v); err != nil {
				return nil, err
			}
		}
		result = append(result, o)
	}
	return result, nil
}

// joinKey makes values usable as map keys with strict equality: numbers of
// any Go type compare by value, strings never equal numbers.
func joinKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "u:"
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "n:" + strconv.FormatFloat(cast.ToFloat64(x), 'g', -1, 64)
	}
	return "o:" + jsonpath.Stringify(v)
}
