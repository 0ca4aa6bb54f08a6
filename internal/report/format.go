package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/stampede-io/stampede/internal/invariant"
	"github.com/stampede-io/stampede/internal/outcome"
)

// decisionLabel renders the judgment headline.
func decisionLabel(d invariant.Decision) string {
	switch d {
	case invariant.Pass:
		return "PASS"
	case invariant.Fail:
		return "FAIL"
	case invariant.Inconclusive:
		return "INCONCLUSIVE"
	}
	return strings.ToUpper(string(d))
}

// RenderText writes the human-readable report. The full verdict
// breakdown is always printed, pass or fail, so a reader can tell
// "correctly safe" from "has a race" from "setup was broken".
func (r *Report) RenderText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", r.Scenario)
	if r.Description != "" {
		fmt.Fprintf(&b, "  %s\n", r.Description)
	}
	fmt.Fprintf(&b, "run: %s\n", r.RunID)
	fmt.Fprintf(&b, "contended key: %q\n", r.Key)
	fmt.Fprintf(&b, "\n")

	if r.Judgment.Reason != invariant.ReasonNone {
		fmt.Fprintf(&b, "judgment: %s (%s)\n", decisionLabel(r.Judgment.Decision), r.Judgment.Reason)
	} else {
		fmt.Fprintf(&b, "judgment: %s\n", decisionLabel(r.Judgment.Decision))
	}
	if r.Judgment.Detail != "" {
		fmt.Fprintf(&b, "  %s\n", r.Judgment.Detail)
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "requests: %d  workers: %d  effective concurrency: %d  release skew: %s  wall: %s\n",
		r.Requests, r.Stats.Workers, r.Stats.EffectiveConcurrency, r.Stats.ReleaseSkew, r.Stats.Wall)
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "verdicts:\n")
	for _, v := range outcome.Verdicts {
		fmt.Fprintf(&b, "  %-20s %d\n", string(v)+":", r.Counts.Get(v))
	}

	if r.GroundTruth != nil {
		fmt.Fprintf(&b, "ground truth: %d record(s) for the contended key\n", *r.GroundTruth)
	}

	if r.SuccessLatency != nil {
		fmt.Fprintf(&b, "success latency: min %s  mean %s  max %s\n",
			r.SuccessLatency.Min, r.SuccessLatency.Mean, r.SuccessLatency.Max)
	}

	if len(r.Anomalies) > 0 {
		fmt.Fprintf(&b, "\nanomalies (first %d):\n", len(r.Anomalies))
		for _, e := range r.Anomalies {
			fmt.Fprintf(&b, "  [%d] %s %s\n", e.Seq, e.Verdict, describeEntry(e))
			if e.BodyExcerpt != "" {
				fmt.Fprintf(&b, "      body: %s\n", e.BodyExcerpt)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// describeEntry renders the status-or-error tail of an anomaly line.
func describeEntry(e Entry) string {
	if e.ErrKind != outcome.ErrNone {
		return fmt.Sprintf("%s: %s (after %s)", e.ErrKind, e.Err, e.Elapsed)
	}
	if e.StatusText != "" {
		return fmt.Sprintf("status %d %s in %s", e.Status, e.StatusText, e.Elapsed)
	}
	return fmt.Sprintf("status %d in %s", e.Status, e.Elapsed)
}
