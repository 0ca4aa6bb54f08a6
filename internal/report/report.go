// Package report assembles the sole externally consumed artifact of a
// run: every outcome with its verdict, the invariant judgment, and the
// timing and concurrency statistics needed to trust the result.
//
// Reports are immutable once built. Entries keep dispatch order so a
// failed run can be diagnosed sequence by sequence, even though the
// evaluation itself is order-independent.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/stampede-io/stampede/internal/dispatch"
	"github.com/stampede-io/stampede/internal/invariant"
	"github.com/stampede-io/stampede/internal/outcome"
)

// DefaultAnomalyLimit is how many anomalous entries a report keeps in
// full detail on failure.
const DefaultAnomalyLimit = 5

// maxExcerpt bounds the body excerpt kept per anomalous entry.
const maxExcerpt = 256

// Entry is one outcome with its verdict, in dispatch order.
type Entry struct {
	Seq        int             `json:"seq"`
	Verdict    outcome.Verdict `json:"verdict"`
	Status     int             `json:"status"`
	StatusText string          `json:"status_text,omitempty"`
	ErrKind    outcome.ErrKind `json:"err_kind,omitempty"`
	Err        string          `json:"err,omitempty"`
	Elapsed    time.Duration   `json:"elapsed"`

	// BodyExcerpt is only populated for anomalous entries.
	BodyExcerpt string `json:"body_excerpt,omitempty"`
}

// Latency summarizes the durations of successful calls.
type Latency struct {
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	Mean time.Duration `json:"mean"`
}

// Report is the aggregate result of one scenario run.
type Report struct {
	RunID       string `json:"run_id"`
	Scenario    string `json:"scenario"`
	Description string `json:"description,omitempty"`

	// Key is the resolved contended key all calls competed over.
	Key string `json:"key"`

	Requests int                `json:"requests"`
	Counts   outcome.Counts     `json:"counts"`
	Judgment invariant.Judgment `json:"judgment"`

	// GroundTruth is the post-burst probed count, nil when no probe is
	// configured.
	GroundTruth *int `json:"ground_truth,omitempty"`

	// SuccessLatency is nil when nothing succeeded.
	SuccessLatency *Latency `json:"success_latency,omitempty"`

	Stats dispatch.Stats `json:"stats"`

	// Entries holds every outcome in dispatch order.
	Entries []Entry `json:"entries"`

	// Anomalies holds the first K anomalous entries with body excerpts,
	// populated only when the judgment is not a pass.
	Anomalies []Entry `json:"anomalies,omitempty"`
}

// Build assembles a report. outcomes and verdicts must be parallel
// slices in dispatch order.
func Build(name, description, key string, outcomes []outcome.Outcome, verdicts []outcome.Verdict,
	counts outcome.Counts, judgment invariant.Judgment, groundTruth *int,
	stats dispatch.Stats, anomalyLimit int) *Report {

	if anomalyLimit <= 0 {
		anomalyLimit = DefaultAnomalyLimit
	}

	r := &Report{
		RunID:       uuid.NewString(),
		Scenario:    name,
		Description: description,
		Key:         key,
		Requests:    len(outcomes),
		Counts:      counts,
		Judgment:    judgment,
		GroundTruth: groundTruth,
		Stats:       stats,
		Entries:     make([]Entry, len(outcomes)),
	}

	for i, o := range outcomes {
		r.Entries[i] = Entry{
			Seq:        o.Seq,
			Verdict:    verdicts[i],
			Status:     o.Status,
			StatusText: o.StatusText,
			ErrKind:    o.ErrKind,
			Err:        o.Err,
			Elapsed:    o.Elapsed,
		}
	}

	r.SuccessLatency = successLatency(outcomes, verdicts)

	if judgment.Decision != invariant.Pass {
		r.Anomalies = collectAnomalies(outcomes, verdicts, judgment, anomalyLimit)
	}

	return r
}

// successLatency computes min/max/mean over success outcomes.
func successLatency(outcomes []outcome.Outcome, verdicts []outcome.Verdict) *Latency {
	var lat *Latency
	var total time.Duration
	count := 0
	for i, o := range outcomes {
		if verdicts[i] != outcome.VerdictSuccess {
			continue
		}
		if lat == nil {
			lat = &Latency{Min: o.Elapsed, Max: o.Elapsed}
		} else {
			if o.Elapsed < lat.Min {
				lat.Min = o.Elapsed
			}
			if o.Elapsed > lat.Max {
				lat.Max = o.Elapsed
			}
		}
		total += o.Elapsed
		count++
	}
	if lat == nil {
		return nil
	}
	lat.Mean = total / time.Duration(count)
	return lat
}

// collectAnomalies picks the first K entries worth a full diagnostic:
// errors, timeouts, and transport failures always; successes too when
// the failure is a multiplicity violation, since the extra winners are
// the evidence.
func collectAnomalies(outcomes []outcome.Outcome, verdicts []outcome.Verdict,
	judgment invariant.Judgment, limit int) []Entry {

	includeSuccess := judgment.Reason == invariant.ReasonMultiplicity ||
		judgment.Reason == invariant.ReasonGroundTruthMismatch

	var anomalies []Entry
	for i, o := range outcomes {
		v := verdicts[i]
		anomalous := v == outcome.VerdictUnexpectedError ||
			v == outcome.VerdictTimeout ||
			v == outcome.VerdictTransportException ||
			(includeSuccess && v == outcome.VerdictSuccess)
		if !anomalous {
			continue
		}
		e := Entry{
			Seq:        o.Seq,
			Verdict:    v,
			Status:     o.Status,
			StatusText: o.StatusText,
			ErrKind:    o.ErrKind,
			Err:        o.Err,
			Elapsed:    o.Elapsed,
			BodyExcerpt: excerpt(o.Body),
		}
		anomalies = append(anomalies, e)
		if len(anomalies) == limit {
			break
		}
	}
	return anomalies
}

func excerpt(body []byte) string {
	if len(body) > maxExcerpt {
		return string(body[:maxExcerpt]) + "..."
	}
	return string(body)
}
