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
		{errors.New("boom"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAborted(tt.err); got != tt.want {
			t.Errorf("IsAborted(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("delete?", true)
	if err != nil || !ok {
		t.Fatalf("ConfirmWithForce(force) = %v, %v", ok, err)
	}
}

func TestIsYes(t *testing.T) {
	for _, s := range []string{"y", "Y", "yes", " YES "} {
		if !isYes(s) {
			t.Errorf("isYes(%q) = false", s)
		}
	}
	for _, s := range []string{"", "n", "no", "yep"} {
		if isYes(s) {
			t.Errorf("isYes(%q) = true", s)
		}
	}
}
