package glob

import (
	"strings"
	"testing"
	"time"
)

func TestMatchBasics(t *testing.T) {
	cases := []struct {
		pattern, text string
		want          bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"*.exe", "a.exe", true},
		{"*.exe", "a.dll", false},
		{"a?c", "abc", true},
		{"a?c", "abbc", false},
		{"A?C", "abc", true}, // case-insensitive
		{"exact", "exact", true},
		{"exact", "exacter", false},
		{"**", "anything", true},
		{"a**b", "ab", true},
		{"a**b", "axxxb", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.text); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.text, got, c.want)
		}
	}
}

func TestMatchNoExponentialBlowup(t *testing.T) {
	pattern := "a*a*a*a*b"
	text := strings.Repeat("a", 30)

	done := make(chan bool, 1)
	go func() {
		done <- Match(pattern, text)
	}()

	select {
	case got := <-done:
		if got {
			t.Errorf("Match(%q, %q) = true, want false (no trailing b)", pattern, text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Match did not return within 2s; suspected exponential blowup")
	}
}
