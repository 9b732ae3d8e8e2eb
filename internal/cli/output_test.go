package cli

import (
	"bytes"
	"fmt"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	value := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "btc_monitor", Count: 3}

	table := func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "NAME\tCOUNT\n%s\t%d\n", value.Name, value.Count)
	}

	t.Cleanup(func() { outputFormat = "table" })

	tests := []struct {
		format string
		want   string
	}{
		{"table", "btc_monitor  3"},
		{"json", `"count": 3`},
		{"yaml", "name: btc_monitor"},
		{"YML", "count: 3"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			outputFormat = tt.format
			var buf bytes.Buffer
			require.NoError(t, render(&buf, value, table))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		outputFormat = "xml"
		err := render(&bytes.Buffer{}, value, table)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatTime(nil))
	assert.Equal(t, "-", formatTime(&time.Time{}))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	assert.Equal(t, "-", formatArgs(nil))
	assert.Equal(t, `["sell",1]`, formatArgs([]any{"sell", 1}))

	assert.Equal(t, "-", proposal("", []any{1}))
	assert.Equal(t, `trader ["buy"]`, proposal("trader", []any{"buy"}))
}
