package ui

import "testing"

func TestPaint(t *testing.T) {
	defer SetColor(colorEnabled)

	SetColor(true)
	if got := Red("failed"); got != "\033[31mfailed\033[0m" {
		t.Errorf("Red() = %q", got)
	}

	SetColor(false)
	if got := Red("failed"); got != "failed" {
		t.Errorf("Red() without color = %q", got)
	}
}

func TestWithDetail(t *testing.T) {
	tests := []struct {
		detail []interface{}
		want   string
	}{
		{nil, "Run failed"},
		{[]interface{}{""}, "Run failed"},
		{[]interface{}{"no roads"}, "Run failed: no roads"},
		{[]interface{}{3, "ignored"}, "Run failed: 3"},
	}
	for _, tt := range tests {
		if got := withDetail("Run failed", tt.detail); got != tt.want {
			t.Errorf("withDetail(%v) = %q, want %q", tt.detail, got, tt.want)
		}
	}
}
