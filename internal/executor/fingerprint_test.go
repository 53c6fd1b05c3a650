package executor

import (
	"testing"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

func TestFingerprint(t *testing.T) {
	base, err := Fingerprint(dispatch.ToolCalculator, []interface{}{"1 + 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(base) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(base))
	}

	tests := []struct {
		name string
		tool dispatch.ToolName
		args []interface{}
		same bool
	}{
		{"identical call", dispatch.ToolCalculator, []interface{}{"1 + 2"}, true},
		{"different tool", dispatch.ToolRetriever, []interface{}{"1 + 2"}, false},
		{"different args", dispatch.ToolCalculator, []interface{}{"1 + 3"}, false},
		{"extra arg", dispatch.ToolCalculator, []interface{}{"1 + 2", 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.tool, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == base) != tt.same {
				t.Errorf("fingerprint equality = %v, want %v", got == base, tt.same)
			}
		})
	}
}

func TestFingerprint_MapOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"query": "hours", "k": 3, "lang": "en"}
	b := map[string]interface{}{"lang": "en", "k": 3, "query": "hours"}

	fa, err := Fingerprint(dispatch.ToolRetriever, []interface{}{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb, err := Fingerprint(dispatch.ToolRetriever, []interface{}{b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fa != fb {
		t.Errorf("expected equal fingerprints, got %s and %s", fa, fb)
	}
}

func TestFingerprint_NilArgsMatchEmpty(t *testing.T) {
	fa, _ := Fingerprint(dispatch.ToolRetriever, nil)
	fb, _ := Fingerprint(dispatch.ToolRetriever, []interface{}{})
	if fa != fb {
		t.Error("expected nil and empty args to fingerprint identically")
	}
}

func TestFingerprint_Unserializable(t *testing.T) {
	_, err := Fingerprint(dispatch.ToolCalculator, []interface{}{make(chan int)})
	if !dispatch.HasCode(err, dispatch.ErrCodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
