package schema

import (
	"strings"
	"testing"
)

func payload(t *testing.T, body string) any {
	t.Helper()
	v, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestGetNestedValue_PresentLeaves(t *testing.T) {
	p := payload(t, `{"a":{"b":{"c":7}},"zero":0,"off":false,"empty":"","n":{"x":0.5}}`)

	tests := []struct {
		path string
		want any
	}{
		{"a.b.c", 7.0},
		{"zero", 0.0},
		{"off", false},
		{"empty", ""},
		{"n.x", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := GetNestedValue(p, tt.path, "default")
			if got != tt.want {
				t.Errorf("GetNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetNestedValue_AbsentReturnsDefault(t *testing.T) {
	p := payload(t, `{"a":{"b":1},"nil":null,"s":"str"}`)

	for _, path := range []string{"missing", "a.c", "a.b.c", "nil", "s.inner", "nil.deeper"} {
		if got := GetNestedValue(p, path, "dflt"); got != "dflt" {
			t.Errorf("GetNestedValue(%q) = %v, want default", path, got)
		}
	}
	if got := GetNestedValue(nil, "a", 42); got != 42 {
		t.Errorf("nil object: got %v, want 42", got)
	}
}

func TestExtractFromSchema_ShapeAndDefaults(t *testing.T) {
	p := payload(t, `{"five_hour":{"utilization":0.45,"resets_at":"2025-06-01T12:00:00Z"},"seven_day":{"utilization":0.78}}`)

	out := ExtractFromSchema(p, Default)
	if len(out) != len(Default.Groups) {
		t.Fatalf("groups = %d, want %d", len(out), len(Default.Groups))
	}
	if got := out[GroupFiveHour]["utilization"]; got != 0.45 {
		t.Errorf("five_hour.utilization = %v, want 0.45", got)
	}
	if got := out[GroupSevenDay]["resets_at"]; got != nil {
		t.Errorf("seven_day.resets_at = %v, want nil", got)
	}
	if got := out[GroupSevenDayOpus]["utilization"]; got != nil {
		t.Errorf("seven_day_opus.utilization = %v, want nil", got)
	}
}

func TestExtractFromSchema_CustomSchemaIsData(t *testing.T) {
	s := Schema{Version: "test", Groups: map[string]Group{
		"g": {"f": {Path: "x.y", Default: "none"}, "h": {Path: "z", Default: 3}},
	}}
	out := ExtractFromSchema(payload(t, `{"x":{"y":"hit"}}`), s)
	if out["g"]["f"] != "hit" {
		t.Errorf("f = %v, want hit", out["g"]["f"])
	}
	if out["g"]["h"] != 3 {
		t.Errorf("h = %v, want default 3", out["g"]["h"])
	}
}

func TestUtilization(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"fraction", 0.45, ptr(45)},
		{"percent", 78.0, ptr(78)},
		{"zero", 0.0, ptr(0)},
		{"string percent", "62%", ptr(62)},
		{"string fraction", "0.5", ptr(50)},
		{"clamped", 250.0, ptr(100)},
		{"negative", -3.0, ptr(0)},
		{"absent", nil, nil},
		{"garbage", "n/a", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Utilization(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Utilization(%v) = %v, want nil", tt.in, *got)
			case tt.want != nil && got == nil:
				t.Errorf("Utilization(%v) = nil, want %v", tt.in, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("Utilization(%v) = %v, want %v", tt.in, *got, *tt.want)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

// FuzzGetNestedValue checks that arbitrary paths never panic against a nested payload.
func FuzzGetNestedValue(f *testing.F) {
	f.Add("a.b.c")
	f.Add("")
	f.Add("...")
	f.Add("a..b")
	f.Add(strings.Repeat("a.", 50))

	p := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1.0}, "": nil}}
	f.Fuzz(func(t *testing.T, path string) {
		_ = GetNestedValue(p, path, nil)
	})
}
