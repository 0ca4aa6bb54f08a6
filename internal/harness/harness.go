// Package harness orchestrates one scenario run end to end: credential
// loading, the pre-burst clean-state check, the burst itself,
// classification, the post-burst ground-truth probe, invariant
// evaluation, and report assembly.
//
// Error policy follows the three-way taxonomy: setup problems (dirty
// state, missing credentials, malformed scenario) are fatal and abort
// before dispatch; invocation failures are recovered into verdicts and
// never crash the run; invariant violations are the designed-for result,
// reported in the Report rather than returned as errors.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stampede-io/stampede/internal/classify"
	"github.com/stampede-io/stampede/internal/dispatch"
	"github.com/stampede-io/stampede/internal/invariant"
	"github.com/stampede-io/stampede/internal/invoker"
	"github.com/stampede-io/stampede/internal/probe"
	"github.com/stampede-io/stampede/internal/report"
	"github.com/stampede-io/stampede/internal/scenario"
)

// SetupError is fatal: the run aborts before any dispatch.
type SetupError struct {
	Stage string // "credentials", "probe", "clean-state", "target"
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup (%s): %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Options tunes a run. The zero value is usable.
type Options struct {
	// Logger receives structured progress events. Nil discards.
	Logger *slog.Logger

	// Invoker overrides the transport binding derived from the
	// scenario. Tests inject deterministic invokers here.
	Invoker invoker.Invoker

	// Prober overrides the ground-truth binding derived from the
	// scenario.
	Prober probe.Prober

	// AnomalyLimit caps the anomalous entries kept in full detail.
	AnomalyLimit int

	// RunDeadline overrides the scenario's run deadline when positive.
	RunDeadline time.Duration
}

// Run executes one scenario and returns its report.
//
// A non-nil error means the run never produced a trustworthy report:
// setup failed or the configuration was unusable. Invariant violations
// and inconclusive runs return a nil error; the judgment is in the
// report.
func Run(ctx context.Context, s *scenario.Scenario, opts Options) (*report.Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rules, err := classify.NewRuleSet(s.Classify)
	if err != nil {
		return nil, fmt.Errorf("classify rules: %w", err)
	}

	token, err := loadCredential(s.Credentials)
	if err != nil {
		return nil, &SetupError{Stage: "credentials", Err: err}
	}

	// The run-scoped values behind {{uuid}} and {{token}} resolve once,
	// so every call still competes over a single contended key.
	runToken := uuid.NewString()
	key, err := resolveKey(s.Key, token, runToken)
	if err != nil {
		return nil, fmt.Errorf("resolving contended key: %w", err)
	}
	logger.Info("starting scenario", "scenario", s.Name, "key", key, "requests", s.Requests)

	prober, cleanup, err := buildProber(s, opts)
	if err != nil {
		return nil, &SetupError{Stage: "probe", Err: err}
	}
	if cleanup != nil {
		defer cleanup()
	}

	if prober != nil && s.GroundTruth != nil && s.GroundTruth.RequireClean {
		pre, err := prober.Probe(ctx, key)
		if err != nil {
			return nil, &SetupError{Stage: "clean-state", Err: err}
		}
		if pre > 0 {
			return nil, &SetupError{
				Stage: "clean-state",
				Err:   fmt.Errorf("found %d existing record(s) for key %q; clean up or use a {{uuid}} key", pre, key),
			}
		}
	}

	inv, invCleanup, err := buildInvoker(s, opts)
	if err != nil {
		return nil, &SetupError{Stage: "target", Err: err}
	}
	if invCleanup != nil {
		defer invCleanup()
	}

	plan, err := buildPlan(s, key, token, runToken, opts.RunDeadline)
	if err != nil {
		return nil, fmt.Errorf("building dispatch plan: %w", err)
	}

	outcomes, stats, err := dispatch.New(inv, logger).Run(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	verdicts, counts := rules.ClassifyAll(outcomes)

	// N real operations already executed; a probe failure here must not
	// throw their outcomes away. The run degrades to Inconclusive with
	// the probe error in the judgment instead of returning an error.
	var groundTruth *int
	var judgment invariant.Judgment
	if prober != nil {
		count, perr := prober.Probe(ctx, key)
		if perr != nil {
			logger.Warn("post-burst ground-truth probe failed", "scenario", s.Name, "error", perr)
			judgment = invariant.Judgment{
				Decision: invariant.Inconclusive,
				Reason:   invariant.ReasonProbeFailure,
				Detail:   fmt.Sprintf("post-burst ground-truth probe failed: %v", perr),
			}
		} else {
			groundTruth = &count
		}
	}
	if judgment.Decision == "" {
		judgment = invariant.Evaluate(counts, groundTruth, s.Invariant)
	}
	logger.Info("scenario complete",
		"scenario", s.Name,
		"decision", string(judgment.Decision),
		"success", counts.Success,
		"conflict", counts.ExpectedConflict,
		"effective_concurrency", stats.EffectiveConcurrency)

	return report.Build(s.Name, s.Description, key, outcomes, verdicts,
		counts, judgment, groundTruth, stats, opts.AnomalyLimit), nil
}

// loadCredential fetches the opaque credential from its external
// source. The harness never mints credentials.
func loadCredential(c *scenario.Credentials) (string, error) {
	if c == nil {
		return "", nil
	}
	if c.Env != "" {
		val, ok := os.LookupEnv(c.Env)
		if !ok || val == "" {
			return "", fmt.Errorf("environment variable %s is not set", c.Env)
		}
		return val, nil
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return "", fmt.Errorf("reading credential file: %w", err)
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return "", fmt.Errorf("credential file %s is empty", c.File)
	}
	return val, nil
}

// resolveKey substitutes run-scoped placeholders into the contended key
// template and NFC-normalizes the result.
func resolveKey(tmpl, token, runToken string) (string, error) {
	key, err := scenario.Substitute(tmpl, map[string]string{
		"token": token,
		"uuid":  runToken,
	})
	if err != nil {
		return "", err
	}
	return scenario.NormalizeKey(key), nil
}

// buildProber constructs the ground-truth binding, unless overridden.
func buildProber(s *scenario.Scenario, opts Options) (probe.Prober, func(), error) {
	if opts.Prober != nil {
		return opts.Prober, nil, nil
	}
	g := s.GroundTruth
	if g == nil {
		return nil, nil, nil
	}
	if g.SQL() {
		p, err := probe.OpenSQL(g.Driver, g.DSN, g.Query)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	}
	p, err := probe.NewHTTPCountProber(nil, g.URL, g.Headers, g.CountPath)
	if err != nil {
		return nil, nil, err
	}
	return p, nil, nil
}

// buildInvoker constructs the transport binding, unless overridden.
func buildInvoker(s *scenario.Scenario, opts Options) (invoker.Invoker, func(), error) {
	if opts.Invoker != nil {
		return opts.Invoker, nil, nil
	}
	switch s.Target.Transport {
	case scenario.TransportHTTP:
		return invoker.NewHTTPInvoker(nil), nil, nil
	case scenario.TransportGRPC:
		g, err := invoker.DialGRPC(s.Target.Address, invoker.GRPCOptions{
			TLS:                s.Target.TLS,
			InsecureSkipVerify: s.Target.InsecureSkipVerify,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, func() { g.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", s.Target.Transport)
}
