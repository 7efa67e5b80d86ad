package timeutil

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"15s", "15s"},
		{"2m5s", "2m 5s"},
		{"3h0m1s", "3h 0m 1s"},
		{"74h30m15s", "3d 2h 30m 15s"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.input); got != tt.want {
			t.Errorf("FormatUptime(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatTime_Invalid(t *testing.T) {
	if got := FormatTime("not a time"); got != "not a time" {
		t.Errorf("FormatTime should return invalid input unchanged, got %q", got)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-10 * time.Second), "10s"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-50 * time.Hour), "2d"},
		{now.Add(time.Hour), "0s"},
	}
	for _, tt := range tests {
		if got := FormatAge(tt.at); got != tt.want {
			t.Errorf("FormatAge(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestFormatUntil(t *testing.T) {
	if got := FormatUntil(time.Time{}); got != "-" {
		t.Errorf("FormatUntil(zero) = %q", got)
	}
	if got := FormatUntil(time.Now().Add(-time.Second)); got != "expired" {
		t.Errorf("FormatUntil(past) = %q", got)
	}
	if got := FormatUntil(time.Now().Add(90*time.Minute + time.Second)); got != "1h" {
		t.Errorf("FormatUntil(90m) = %q", got)
	}
}
