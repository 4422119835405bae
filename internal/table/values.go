package table

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// NormalizeColumn trims a column name, lower-cases it and replaces spaces and
// hyphens with underscores.
func NormalizeColumn(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

// NormalizeColumns normalizes every name and fails if two names collide.
func NormalizeColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, n := range names {
		norm := NormalizeColumn(n)
		if prev, dup := seen[norm]; dup {
			return nil, fmt.Errorf("columns %q and %q both normalize to %q", prev, n, norm)
		}
		seen[norm] = n
		out[i] = norm
	}
	return out, nil
}

// AsString returns the textual content of a string cell.
// ok is false for nil and non-string cells.
func AsString(v Value) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}

// AsInt converts integral cells to int64. Float cells must hold a whole
// number; strings are parsed. ok is false for nil.
func AsInt(v Value) (int64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return x, true, nil
	case int:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		if x != math.Trunc(x) {
			return 0, false, fmt.Errorf("value %v is not a whole number", x)
		}
		return int64(x), true, nil
	case *big.Rat:
		if x == nil {
			return 0, false, nil
		}
		if !x.IsInt() {
			return 0, false, fmt.Errorf("value %s is not a whole number", x.FloatString(6))
		}
		return x.Num().Int64(), true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("value %q is not a number", x)
		}
		return AsInt(f)
	default:
		return 0, false, fmt.Errorf("value of type %T is not a number", v)
	}
}

// AsFloat converts numeric cells to float64. ok is false for nil.
func AsFloat(v Value) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		return x, true, nil
	case int64:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case *big.Rat:
		if x == nil {
			return 0, false, nil
		}
		f, _ := x.Float64()
		return f, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("value %q is not a number", x)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("value of type %T is not a number", v)
	}
}

// Format renders a cell for text export. Missing cells render as the empty
// string so that they stay distinguishable from a literal 0.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case *big.Rat:
		if x == nil {
			return ""
		}
		f, _ := x.Float64()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case civil.Date:
		return x.String()
	case civil.DateTime:
		return x.String()
	case civil.Time:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// CompareKeys orders key cells for sorting. Numbers, including numeric
// strings, come first in numeric order, then every other value in text order,
// then missing values. Numerically equal keys fall back to text order so the
// result is total.
func CompareKeys(a, b Value) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if ra == rankNumber {
		if c := compareNumbers(a, b); c != 0 {
			return c
		}
	}
	return strings.Compare(Format(a), Format(b))
}

const (
	rankNumber = iota
	rankText
	rankMissing
)

func keyRank(v Value) int {
	if v == nil {
		return rankMissing
	}
	if _, ok, err := AsFloat(v); ok && err == nil {
		return rankNumber
	}
	return rankText
}

func compareNumbers(a, b Value) int {
	ia, okA, errA := AsInt(a)
	ib, okB, errB := AsInt(b)
	if okA && okB && errA == nil && errB == nil {
		return cmp.Compare(ia, ib)
	}
	fa, _, _ := AsFloat(a)
	fb, _, _ := AsFloat(b)
	return cmp.Compare(fa, fb)
}
