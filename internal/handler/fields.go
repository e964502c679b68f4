package handler

import (
	"encoding/json"
	"slices"

	"github.com/go-faster/errors"
)

// project keeps only fields (plus "id") of every object in v. v must encode
// to a JSON object or an array of objects. An empty fields list returns v
// unchanged.
func project(v any, fields []string) (any, error) {
	if len(fields) == 0 {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal")
	}

	keep := func(obj map[string]any) map[string]any {
		out := make(map[string]any, len(fields)+1)
		for k, val := range obj {
			if k == "id" || slices.Contains(fields, k) {
				out[k] = val
			}
		}
		return out
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]map[string]any, len(list))
		for i, obj := range list {
			out[i] = keep(obj)
		}
		return out, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}
	return keep(obj), nil
}
