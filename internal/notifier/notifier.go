// Package notifier delivers sync run summaries to operators.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/syncer"
)

// Notifier sends one sync report to an external channel.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify delivers the report. Implementations must honour ctx.
	Notify(ctx context.Context, report *syncer.Report) error
}

// maxListedFailures caps the failures spelled out in a text summary.
const maxListedFailures = 10

// Summary renders a report as plain text for chat-style channels.
func Summary(r *syncer.Report) string {
	var sb strings.Builder

	kind := "sync"
	if r.Forced {
		kind = "resync"
	}
	fmt.Fprintf(&sb, "Pricing %s %s: %s to %s\n", kind, r.RunID,
		core.FormatDate(r.Start), core.FormatDate(r.End))
	fmt.Fprintf(&sb, "planned %d, fetched %d, cached %d, failed %d",
		r.Planned, r.Fetched, r.AlreadyCached, r.Failed)
	if r.Cancelled {
		sb.WriteString(" (cancelled)")
	}

	for i, f := range r.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&sb, "\n... and %d more", len(r.Failures)-i)
			break
		}
		fmt.Fprintf(&sb, "\n- %s %s (%s): %s", f.DataType, core.FormatDate(f.Date), f.Cadence, f.Reason)
	}
	return sb.String()
}
