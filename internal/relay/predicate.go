package relay

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Predicate reports whether an event's decoded fields satisfy a condition.
type Predicate func(values map[string]any) (bool, error)

// CompilePredicates parses simple expressions over event fields.
// Supported operators: ==, !=, >, <, >=, <=, in, contains.
// Examples:
//
//	"value > 0"
//	"value >= ether(1)"
//	"owner in 0xabc...,0xdef..."
//
// Address and string comparisons ignore case.
func CompilePredicates(exprs []string) ([]Predicate, error) {
	var preds []Predicate
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func compile(expr string) (Predicate, error) {
	if field, rhs, ok := strings.Cut(expr, " in "); ok {
		field = strings.TrimSpace(field)
		values := map[string]struct{}{}
		for _, v := range strings.Split(rhs, ",") {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				values[v] = struct{}{}
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("invalid in expression: %s", expr)
		}
		return func(vals map[string]any) (bool, error) {
			v, ok := vals[field]
			if !ok {
				return false, nil
			}
			_, hit := values[strings.ToLower(render(v))]
			return hit, nil
		}, nil
	}

	if field, needle, ok := strings.Cut(expr, " contains "); ok {
		field = strings.TrimSpace(field)
		needle = strings.ToLower(strings.TrimSpace(needle))
		return func(vals map[string]any) (bool, error) {
			v, ok := vals[field]
			if !ok {
				return false, nil
			}
			return strings.Contains(strings.ToLower(render(v)), needle), nil
		}, nil
	}

	var op string
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if strings.Contains(expr, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	field, rhsRaw, _ := strings.Cut(expr, op)
	field = strings.TrimSpace(field)
	rhsRaw = strings.TrimSpace(rhsRaw)
	if field == "" || rhsRaw == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}
	numRHS, rhsIsNum := evaluateNumber(rhsRaw)

	return func(vals map[string]any) (bool, error) {
		v, ok := vals[field]
		if !ok {
			return false, nil
		}
		if rhsIsNum {
			lhs, ok := toNumber(v)
			if !ok {
				return false, nil
			}
			c := lhs.Cmp(numRHS)
			switch op {
			case "==":
				return c == 0, nil
			case "!=":
				return c != 0, nil
			case ">":
				return c > 0, nil
			case "<":
				return c < 0, nil
			case ">=":
				return c >= 0, nil
			case "<=":
				return c <= 0, nil
			}
		}

		lhs := render(v)
		switch op {
		case "==":
			return strings.EqualFold(lhs, rhsRaw), nil
		case "!=":
			return !strings.EqualFold(lhs, rhsRaw), nil
		default:
			return false, nil
		}
	}, nil
}

func allPredicates(preds []Predicate, vals map[string]any) bool {
	for _, p := range preds {
		ok, err := p(vals)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// evaluateNumber parses "100", "1e6", "1_000_000", "gwei(2)", "ether(1.5)" and a single
// multiplication such as "5 * 1e18" into a base-unit value.
func evaluateNumber(s string) (*big.Float, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")

	if a, b, ok := strings.Cut(s, "*"); ok {
		x, ok1 := evaluateNumber(a)
		y, ok2 := evaluateNumber(b)
		if !ok1 || !ok2 {
			return nil, false
		}
		return new(big.Float).Mul(x, y), true
	}

	for unit, scale := range map[string]float64{"wei": 1, "gwei": 1e9, "ether": 1e18} {
		prefix := unit + "("
		if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ")") {
			v, ok := evaluateNumber(s[len(prefix) : len(s)-1])
			if !ok {
				return nil, false
			}
			return new(big.Float).Mul(v, big.NewFloat(scale)), true
		}
	}

	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return nil, false
	}
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, false
	}
	return f, true
}

func toNumber(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Float).SetInt(n), true
	case uint8:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Float).SetUint64(n), true
	case int:
		return big.NewFloat(float64(n)), true
	case int64:
		return new(big.Float).SetInt64(n), true
	case float64:
		return big.NewFloat(n), true
	case string:
		return evaluateNumber(n)
	default:
		return nil, false
	}
}

func render(v any) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case [32]byte:
		return common.Hash(x).Hex()
	default:
		return fmt.Sprint(v)
	}
}
