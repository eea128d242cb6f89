package docstore

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValueOfKinds(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want ValueKind
	}{
		{"nil", nil, KindNull},
		{"string", "hello", KindString},
		{"int", 42, KindNumber},
		{"float", 1.5, KindNumber},
		{"decimal", decimal.NewFromInt(7), KindNumber},
		{"bool", true, KindBool},
		{"time", time.Now(), KindTime},
		{"bytes", []byte{1, 2}, KindBytes},
		{"map", map[string]any{"a": "b"}, KindMap},
		{"list", []any{"a", 1}, KindList},
		{"string slice", []string{"a"}, KindList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.in)
			if err != nil {
				t.Fatalf("ValueOf failed: %v", err)
			}
			if v.Kind != tt.want {
				t.Errorf("expected kind %v, got %v", tt.want, v.Kind)
			}
		})
	}
}

func TestValueOfRejectsUnknownType(t *testing.T) {
	type opaque struct{}
	if _, err := ValueOf(opaque{}); err == nil {
		t.Error("expected unsupported type error")
	}
	if _, err := ValueOf(map[string]any{"inner": opaque{}}); err == nil {
		t.Error("expected nested unsupported type error")
	}
}

func TestMapStringsRewritesNestedStrings(t *testing.T) {
	v, err := ValueOf(map[string]any{
		"id":    "master-doc-1",
		"url":   "https://files.example.com/master-doc-1/page.pdf",
		"total": 100,
		"refs":  []any{"master-doc-1", true},
	})
	if err != nil {
		t.Fatalf("ValueOf failed: %v", err)
	}

	rewritten := v.MapStrings(func(s string) string {
		return strings.ReplaceAll(s, "master-", "session-abc-")
	})
	out := rewritten.Interface().(map[string]any)

	if out["id"] != "session-abc-doc-1" {
		t.Errorf("id not rewritten: %v", out["id"])
	}
	if out["url"] != "https://files.example.com/session-abc-doc-1/page.pdf" {
		t.Errorf("embedded id not rewritten: %v", out["url"])
	}
	if !out["total"].(decimal.Decimal).Equal(decimal.NewFromInt(100)) {
		t.Errorf("number changed: %v", out["total"])
	}
	refs := out["refs"].([]any)
	if refs[0] != "session-abc-doc-1" || refs[1] != true {
		t.Errorf("list not rewritten correctly: %v", refs)
	}
}
