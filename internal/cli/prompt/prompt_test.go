package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
)

func TestIsAborted(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{promptui.ErrInterrupt, true},
		{promptui.ErrAbort, true},
		{ErrAborted, true},
		{fmt.Errorf("wrapped: %w", ErrAborted), true},
		{errors.New("other"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAborted(tt.err); got != tt.want {
			t.Errorf("IsAborted(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWrapError(t *testing.T) {
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
	if !errors.Is(wrapError(promptui.ErrInterrupt), ErrAborted) {
		t.Error("interrupt should map to ErrAborted")
	}
	other := errors.New("boom")
	if wrapError(other) != other {
		t.Error("other errors should pass through")
	}
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Delete?", true)
	if err != nil || !ok {
		t.Errorf("ConfirmWithForce(force) = %v, %v", ok, err)
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"aaa.bbb.ccc", false},
		{"  aaa.bbb.ccc\n", false},
		{"", true},
		{"not-a-jwt", true},
		{"a.b", true},
		{"aa a.bbb.ccc", true},
	}
	for _, tt := range tests {
		if err := ValidateToken(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateToken(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}
