package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCompilePredicates_NumericComparisons(t *testing.T) {
	preds, err := CompilePredicates([]string{"value > 10", "value < 20"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	args := map[string]any{"value": big.NewInt(15)}
	for _, p := range preds {
		ok, err := p(args)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if !ok {
			t.Fatalf("expected predicate to pass")
		}
	}
}

func TestCompilePredicates_Units(t *testing.T) {
	tests := []struct {
		expr  string
		value *big.Int
		want  bool
	}{
		{"value >= ether(1)", new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), true},
		{"value >= ether(1)", big.NewInt(999), false},
		{"value > gwei(2)", big.NewInt(2_000_000_001), true},
		{"value == 5 * 1e3", big.NewInt(5000), true},
		{"value != 1_000", big.NewInt(1000), false},
		{"value <= wei(7)", big.NewInt(7), true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			preds, err := CompilePredicates([]string{tt.expr})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			got, err := preds[0](map[string]any{"value": tt.value})
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Fatalf("%s with %s = %v, want %v", tt.expr, tt.value, got, tt.want)
			}
		})
	}
}

func TestCompilePredicates_InAndContains(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	preds, err := CompilePredicates([]string{
		"owner in 0x00000000000000000000000000000000000000AA, 0x00000000000000000000000000000000000000BB",
		"memo contains claim",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	args := map[string]any{"owner": owner, "memo": "Policy CLAIM raised"}
	if !allPredicates(preds, args) {
		t.Fatalf("expected predicates to pass")
	}
	args["owner"] = common.HexToAddress("0x01")
	if allPredicates(preds, args) {
		t.Fatalf("expected owner outside the set to fail")
	}
}

func TestCompilePredicates_StringEquality(t *testing.T) {
	preds, err := CompilePredicates([]string{"status == ok"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err := preds[0](map[string]any{"status": "OK"})
	if err != nil || !ok {
		t.Fatalf("expected true, got %v err=%v", ok, err)
	}
}

func TestCompilePredicates_MissingFieldFails(t *testing.T) {
	preds, err := CompilePredicates([]string{"value > 0"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if allPredicates(preds, map[string]any{"other": 1}) {
		t.Fatalf("expected missing field to fail")
	}
	if !allPredicates(nil, map[string]any{}) {
		t.Fatalf("expected no predicates to pass")
	}
}

func TestCompilePredicates_Invalid(t *testing.T) {
	for _, expr := range []string{"value", "value in ", "== 3"} {
		if _, err := CompilePredicates([]string{expr}); err == nil {
			t.Fatalf("expected %q to fail", expr)
		}
	}
}
