package value

import "strings"

// Lookup projects a dotted path out of obj.
//
// Each segment selects an object member. When an intermediate value is an
// Array the remaining path is applied to every element and the non-null
// results are collected into an Array (Null when nothing matched). Missing
// members yield Null, never an error. An empty path returns obj itself.
func Lookup(obj Object, path string) Value {
	if path == "" {
		return obj
	}
	return lookup(obj, strings.Split(path, "."))
}

func lookup(v Value, parts []string) Value {
	if len(parts) == 0 {
		if v == nil {
			return Null{}
		}
		return v
	}
	switch val := v.(type) {
	case Object:
		child, ok := val[parts[0]]
		if !ok {
			return Null{}
		}
		return lookup(child, parts[1:])
	case Array:
		out := Array{}
		for _, elem := range val {
			projected := lookup(elem, parts)
			if !IsNull(projected) {
				out = append(out, projected)
			}
		}
		if len(out) == 0 {
			return Null{}
		}
		return out
	default:
		return Null{}
	}
}

// Has reports whether path resolves to a non-null value in obj.
func Has(obj Object, path string) bool {
	return !IsNull(Lookup(obj, path))
}
