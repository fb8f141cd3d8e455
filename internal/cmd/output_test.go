package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 20))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abcdefghijklmnop", truncate("abcdefghijklmnop", 4), "tiny widths are ignored")
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, width: 30}
	p.table([]string{"ID", "NOTE"}, [][]string{
		{"a", "fine"},
		{"long-id", strings.Repeat("x", 40)},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"ID       NOTE",
		"a        fine",
		"long-id  " + strings.Repeat("x", 18) + "...",
	}, lines)
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "-", ago(time.Time{}, now))
	assert.Equal(t, "1m30s ago", ago(now.Add(-90*time.Second), now))
}
