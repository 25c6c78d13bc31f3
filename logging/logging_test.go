package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Debug("hidden")
	l.Info("also hidden")
	l.Warn("visible")
	l.Error("also visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug/info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Expected warn/error to pass, got: %s", out)
	}
}

func TestComponentAndAgentScope(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.WithAgent("desk").WithComponent("reconciler").Info("pass complete")

	out := buf.String()
	if !strings.Contains(out, "[desk/reconciler]") {
		t.Errorf("Expected scoped prefix, got: %s", out)
	}
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.Info("claimed", map[string]interface{}{"item": "abc123"})

	if !strings.Contains(buf.String(), "item=abc123") {
		t.Errorf("Expected key=value field, got: %s", buf.String())
	}
}

func TestTransitionHelper(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.Transition("abc123", "approved", "claimed", "desk")

	out := buf.String()
	for _, want := range []string{"transition", "from=approved", "to=claimed", "actor=desk"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got: %s", want, out)
		}
	}
}

func TestConflictHelperLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Conflict("abc123", "desk", "field")

	out := buf.String()
	if !strings.Contains(out, "claim_conflict") || !strings.Contains(out, "winner=desk") {
		t.Errorf("Expected conflict log at warn level, got: %s", out)
	}
}
