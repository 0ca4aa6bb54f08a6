package harness

import (
	"fmt"
	"strconv"
	"time"

	"github.com/stampede-io/stampede/internal/dispatch"
	"github.com/stampede-io/stampede/internal/invoker"
	"github.com/stampede-io/stampede/internal/scenario"
)

// buildPlan resolves every input before any concurrency starts:
// template substitution and credential injection happen here, so the
// only work left between barrier release and the wire is the call
// itself. A fixed scenario always yields the same plan shape (same N,
// same concurrency, same per-call inputs apart from {{seq}}).
func buildPlan(s *scenario.Scenario, key, token, runToken string, deadlineOverride time.Duration) (dispatch.Plan, error) {
	plan := dispatch.Plan{
		Calls:       make([]invoker.Call, 0, s.Requests),
		Concurrency: s.Concurrency,
		StaggerRPS:  s.StaggerRPS,
		RunDeadline: s.RunDeadline.Std(),
	}
	if deadlineOverride > 0 {
		plan.RunDeadline = deadlineOverride
	}

	for seq := 1; seq <= s.Requests; seq++ {
		vars := map[string]string{
			"key":   key,
			"token": token,
			"uuid":  runToken,
			"seq":   strconv.Itoa(seq),
		}

		call, err := buildCall(s, seq, vars)
		if err != nil {
			return dispatch.Plan{}, fmt.Errorf("call %d: %w", seq, err)
		}
		plan.Calls = append(plan.Calls, call)
	}
	return plan, nil
}

func buildCall(s *scenario.Scenario, seq int, vars map[string]string) (invoker.Call, error) {
	call := invoker.Call{
		Seq:     seq,
		Timeout: s.CallTimeout.Std(),
	}

	body, err := scenario.Substitute(s.Target.Body, vars)
	if err != nil {
		return invoker.Call{}, fmt.Errorf("body: %w", err)
	}
	call.Body = []byte(body)

	switch s.Target.Transport {
	case scenario.TransportHTTP:
		call.Method = s.Target.Method
		call.Target, err = scenario.Substitute(s.Target.URL, vars)
		if err != nil {
			return invoker.Call{}, fmt.Errorf("url: %w", err)
		}
		call.Headers, err = scenario.SubstituteMap(s.Target.Headers, vars)
		if err != nil {
			return invoker.Call{}, fmt.Errorf("headers: %w", err)
		}
	case scenario.TransportGRPC:
		call.Target = s.Target.FullMethod
		call.Headers, err = scenario.SubstituteMap(s.Target.Metadata, vars)
		if err != nil {
			return invoker.Call{}, fmt.Errorf("metadata: %w", err)
		}
	default:
		return invoker.Call{}, fmt.Errorf("unknown transport %q", s.Target.Transport)
	}

	return call, nil
}
