package format_test

import (
	"strings"
	"testing"
	"time"

	"crucible/internal/format"
)

func TestASCIITable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Tool", "Worker", "Requires")
	tb.Row("analyze_dataset", "analysis", "empty")
	tb.Row("convert_dataset", "conversion", "analyzed")
	out := tb.String()

	if !strings.Contains(out, "analyze_dataset") {
		t.Errorf("missing row content:\n%s", out)
	}
	// StyleLight uses box-drawing characters.
	if !strings.Contains(out, "───") {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdownTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Stage", "Tool")
	tb.Row("analyzed", "analyze_dataset")
	out := tb.String()

	if !strings.Contains(out, "| Stage") {
		t.Errorf("expected markdown header:\n%s", out)
	}
	if !strings.Contains(out, "---") {
		t.Errorf("expected markdown separator:\n%s", out)
	}
}

func TestFmtDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{95 * time.Second, "1m 35s"},
		{0, "0s"},
	}
	for _, c := range cases {
		if got := format.FmtDuration(c.d); got != c.want {
			t.Errorf("FmtDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := format.Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := format.Truncate("a long knowledge graph reference", 10); got != "a long ..." {
		t.Errorf("Truncate long = %q", got)
	}
}
