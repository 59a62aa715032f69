package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a := NewID("run")
	b := NewID("run")
	if !strings.HasPrefix(a, "run_") || len(a) != len("run_")+32 {
		t.Fatalf("NewID() = %q", a)
	}
	if a == b {
		t.Fatalf("NewID() returned duplicate %q", a)
	}
	if got := NewID(""); len(got) != 32 {
		t.Fatalf("NewID(\"\") = %q", got)
	}
}
