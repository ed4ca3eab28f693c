package config

import (
	"testing"
	"time"
)

func TestBool(t *testing.T) {
	if got := Bool("BOOKD_TEST_BOOL", true); !got {
		t.Error("unset key should use fallback")
	}
	t.Setenv("BOOKD_TEST_BOOL", "false")
	if got := Bool("BOOKD_TEST_BOOL", true); got {
		t.Error("false should override fallback")
	}
	t.Setenv("BOOKD_TEST_BOOL", "not-a-bool")
	if got := Bool("BOOKD_TEST_BOOL", true); !got {
		t.Error("unparsable value should use fallback")
	}
}

func TestDurationMinutes(t *testing.T) {
	if got := DurationMinutes("BOOKD_TEST_MINS", time.Minute); got != time.Minute {
		t.Errorf("unset key = %v, want fallback", got)
	}
	t.Setenv("BOOKD_TEST_MINS", "5")
	if got := DurationMinutes("BOOKD_TEST_MINS", time.Minute); got != 5*time.Minute {
		t.Errorf("got %v, want 5m", got)
	}
	t.Setenv("BOOKD_TEST_MINS", "-1")
	if got := DurationMinutes("BOOKD_TEST_MINS", time.Minute); got != time.Minute {
		t.Errorf("non-positive value = %v, want fallback", got)
	}
}

func TestPort(t *testing.T) {
	p, err := Port("BOOKD_TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("got %q, %v", p, err)
	}
	t.Setenv("BOOKD_TEST_PORT", "70000")
	if _, err := Port("BOOKD_TEST_PORT", "8080"); err == nil {
		t.Error("out-of-range port should error")
	}
}
