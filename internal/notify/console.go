// Package notify implements ports.Notifier as a plain console writer,
// grounded on the teacher's internal/adapters/notify console reporter.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// Console writes one line per event to an io.Writer (stdout in production,
// a buffer in tests).
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier writing to stdout.
func NewConsole() *Console { return &Console{out: os.Stdout} }

// NewConsoleWriter creates a notifier writing to an arbitrary writer, for tests.
func NewConsoleWriter(w io.Writer) *Console { return &Console{out: w} }

// Notify prints a timestamped, single-line event with its payload rendered
// as sorted key=value pairs so output is deterministic for tests.
func (c *Console) Notify(_ context.Context, event string, payload map[string]any) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s%s\n", now, event, formatPayload(payload))
}

func formatPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		out += fmt.Sprintf(" %s=%v", k, payload[k])
	}
	return out
}
