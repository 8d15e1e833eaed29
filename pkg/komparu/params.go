package komparu

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// Params is a nested parameter mapping used for query strings and mapping
// bodies. Values may be scalars, nested mappings (Params or any map with
// string keys) and lists (any slice or array other than []byte).
type Params map[string]any

// Clone returns a deep copy of the mapping.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}

	out := make(Params, len(p))
	for key, value := range p {
		out[key] = cloneValue(value)
	}

	return out
}

// Set records value under key, replacing any earlier value.
func (p Params) Set(key string, value any) Params {
	p[key] = value

	return p
}

// Merge returns a new mapping where override replaces base recursively:
// nested mappings are merged key by key, lists are replaced index by index,
// and any other value in override wins outright. Neither input is modified.
func Merge(base, override Params) Params {
	out := base.Clone()

	for key, value := range override {
		if existing, ok := out[key]; ok {
			out[key] = mergeValue(existing, value)

			continue
		}

		out[key] = cloneValue(value)
	}

	return out
}

func mergeValue(base, override any) any {
	baseMap, baseIsMap := asMapping(base)
	overrideMap, overrideIsMap := asMapping(override)

	if baseIsMap && overrideIsMap {
		return Merge(baseMap, overrideMap)
	}

	baseList, baseIsList := asList(base)
	overrideList, overrideIsList := asList(override)

	if baseIsList && overrideIsList {
		out := make([]any, len(baseList))
		for i, v := range baseList {
			out[i] = cloneValue(v)
		}

		for i, v := range overrideList {
			if i < len(out) {
				out[i] = mergeValue(out[i], v)
			} else {
				out = append(out, cloneValue(v))
			}
		}

		return out
	}

	return cloneValue(override)
}

func asParams(value any) (Params, bool) {
	switch typed := value.(type) {
	case Params:
		return typed, true
	case map[string]any:
		return Params(typed), true
	default:
		return nil, false
	}
}

// asMapping is asParams extended to any map with string keys. Typed maps
// are copied into a new Params.
func asMapping(value any) (Params, bool) {
	if params, ok := asParams(value); ok {
		return params, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(Params, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}

	return out, true
}

// asList returns the elements of any slice or array except []byte.
func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case nil, []byte:
		return nil, false
	case []any:
		return typed, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

func cloneValue(value any) any {
	if m, ok := asParams(value); ok {
		return m.Clone()
	}

	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = cloneValue(v)
		}

		return out
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)

		return out.Interface()
	}

	return value
}

// Encode renders the mapping as a query string. Keys are sorted at every
// level so two mappings with equal content always encode identically.
// Nested values use bracket notation (filter[name]=x, ids[0]=1).
func (p Params) Encode() string {
	var parts []string

	encodeMap(&parts, "", p)

	return strings.Join(parts, "&")
}

func encodeMap(parts *[]string, prefix string, values Params) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		name := key
		if prefix != "" {
			name = prefix + "[" + key + "]"
		}

		encodeValue(parts, name, values[key])
	}
}

func encodeValue(parts *[]string, name string, value any) {
	if nested, ok := asMapping(value); ok {
		encodeMap(parts, name, nested)

		return
	}

	if list, ok := asList(value); ok {
		for i, v := range list {
			encodeValue(parts, fmt.Sprintf("%s[%d]", name, i), v)
		}

		return
	}

	switch typed := value.(type) {
	case nil:
		return
	case bool:
		flag := "0"
		if typed {
			flag = "1"
		}

		*parts = append(*parts, url.QueryEscape(name)+"="+flag)
	default:
		*parts = append(*parts, url.QueryEscape(name)+"="+url.QueryEscape(fmt.Sprint(typed)))
	}
}
