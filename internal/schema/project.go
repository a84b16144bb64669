package schema

import (
	"strconv"
	"strings"

	"github.com/roach88/soupstore/internal/value"
)

// Project extracts the column value for spec from doc. The result is one of
// nil, string, int64 or float64, ready to bind as a SQL argument. Values
// that cannot be converted to the column type project to nil.
func Project(doc value.Object, spec IndexSpec) (any, error) {
	return Coerce(value.Lookup(doc, spec.Path), spec.Type)
}

// Coerce converts v to the SQL argument stored in a column of type t.
// Query parameters go through the same conversion as projected values so
// comparisons see identical storage classes.
func Coerce(v value.Value, t Type) (any, error) {
	if value.IsNull(v) {
		return nil, nil
	}

	switch t {
	case TypeString:
		return projectString(v)
	case TypeInteger:
		return projectInteger(v), nil
	case TypeFloating:
		return projectFloating(v), nil
	case TypeJSON1:
		return projectJSON(v)
	default:
		return nil, nil
	}
}

// ProjectAll returns the column values of every index spec, in position order.
func ProjectAll(doc value.Object, specs []IndexSpec) ([]any, error) {
	out := make([]any, len(specs))
	for i, spec := range specs {
		v, err := Project(doc, spec)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func projectString(v value.Value) (any, error) {
	switch val := v.(type) {
	case value.String:
		return string(val), nil
	case value.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case value.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case value.Bool:
		return strconv.FormatBool(bool(val)), nil
	default:
		data, err := value.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func projectInteger(v value.Value) any {
	switch val := v.(type) {
	case value.Int:
		return int64(val)
	case value.Float:
		return int64(val)
	case value.Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case value.String:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return nil
}

func projectFloating(v value.Value) any {
	switch val := v.(type) {
	case value.Int:
		return float64(val)
	case value.Float:
		return float64(val)
	case value.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64); err == nil {
			return f
		}
	}
	return nil
}

func projectJSON(v value.Value) (any, error) {
	switch val := v.(type) {
	case value.String:
		return string(val), nil
	case value.Int:
		return int64(val), nil
	case value.Float:
		return float64(val), nil
	case value.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		data, err := value.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}
