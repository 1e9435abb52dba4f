package common

import (
	"errors"
	"testing"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "loans"); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
	if err := Guard(pauseSet{"loans": true}, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
	if err := Guard(pauseSet{"loans": true}, "loans"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauseSet{"moneymarket": true}, "loans"); err != nil {
		t.Fatalf("unrelated pause must not block: %v", err)
	}
}
