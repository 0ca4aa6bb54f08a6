package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stampede-io/stampede/internal/scenario"
)

func TestBuildPlan_ResolvesPerCallTemplates(t *testing.T) {
	s := slugScenario(3)
	s.Target.URL = "http://target.local/api/v1/tenants"
	s.Target.Headers = map[string]string{"Authorization": "Bearer {{token}}"}

	plan, err := buildPlan(s, "race-test-slug", "tok-1", "run-uuid", 0)
	require.NoError(t, err)

	require.Len(t, plan.Calls, 3)
	assert.Equal(t, 3, plan.Concurrency)
	for i, call := range plan.Calls {
		assert.Equal(t, i+1, call.Seq)
		assert.Equal(t, "POST", call.Method)
		assert.Equal(t, "http://target.local/api/v1/tenants", call.Target)
		assert.Equal(t, "Bearer tok-1", call.Headers["Authorization"])
		assert.Equal(t, 5*time.Second, call.Timeout)
	}

	// {{key}} is shared, {{seq}} varies per call.
	assert.Contains(t, string(plan.Calls[0].Body), `"slug": "race-test-slug"`)
	assert.Contains(t, string(plan.Calls[0].Body), "Tenant 1")
	assert.Contains(t, string(plan.Calls[2].Body), "Tenant 3")
}

func TestBuildPlan_DeadlineOverride(t *testing.T) {
	s := slugScenario(2)
	s.RunDeadline = scenario.Duration(time.Minute)

	plan, err := buildPlan(s, "k", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, plan.RunDeadline)

	plan, err = buildPlan(s, "k", "", "", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, plan.RunDeadline)
}

func TestBuildPlan_UnknownPlaceholderFails(t *testing.T) {
	s := slugScenario(2)
	s.Target.Body = `{"slug": "{{keey}}"}`

	_, err := buildPlan(s, "k", "", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keey")
}

// TestBuildPlan_StableAcrossYAMLRoundTrip serializes a loaded scenario
// back to YAML, reloads it, and checks that both copies produce the
// same dispatch plan: same N, same concurrency, same per-call inputs.
func TestBuildPlan_StableAcrossYAMLRoundTrip(t *testing.T) {
	doc := `name: tenant-slug-race
description: "slug uniqueness under concurrent creation"
target:
  transport: http
  method: POST
  url: http://localhost:8080/api/v1/tenants
  headers:
    Authorization: "Bearer {{token}}"
    Content-Type: application/json
  body: '{"slug": "{{key}}", "name": "Tenant {{seq}}"}'
key: race-test-slug
requests: 20
concurrency: 10
stagger_rps: 2.5
call_timeout: 10s
run_deadline: 1m30s
classify:
  - when: {status: 201}
    verdict: success
  - when: {status: 409}
    verdict: expected_conflict
invariant:
  success: {max: 1}
  conflict: {min: 1}
ground_truth:
  driver: sqlite3
  dsn: file:auth.db
  query: "SELECT COUNT(*) FROM tenants WHERE slug = ?"
  require_clean: true
`
	dir := t.TempDir()
	original := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(original, []byte(doc), 0o644))

	first, err := scenario.Load(original)
	require.NoError(t, err)

	data, err := yaml.Marshal(first)
	require.NoError(t, err)
	reserialized := filepath.Join(dir, "reserialized.yaml")
	require.NoError(t, os.WriteFile(reserialized, data, 0o644))

	second, err := scenario.Load(reserialized)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	planA, err := buildPlan(first, "race-test-slug", "tok", "run-uuid", 0)
	require.NoError(t, err)
	planB, err := buildPlan(second, "race-test-slug", "tok", "run-uuid", 0)
	require.NoError(t, err)

	assert.Equal(t, planA, planB)
	assert.Len(t, planB.Calls, 20)
	assert.Equal(t, 10, planB.Concurrency)
	assert.Equal(t, 2.5, planB.StaggerRPS)
	assert.Equal(t, 90*time.Second, planB.RunDeadline)
}

func TestBuildCall_GRPCUsesFullMethodAndMetadata(t *testing.T) {
	s := slugScenario(1)
	s.Target = scenario.Target{
		Transport:  scenario.TransportGRPC,
		Address:    "localhost:9000",
		FullMethod: "/auth.TokenExchange/ExchangeToken",
		Metadata:   map[string]string{"authorization": "Bearer {{token}}"},
	}
	s.Target.Body = `{"subject_token": "{{token}}"}`

	call, err := buildCall(s, 1, map[string]string{
		"key": "k", "token": "tok-2", "uuid": "u", "seq": "1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/auth.TokenExchange/ExchangeToken", call.Target)
	assert.Empty(t, call.Method)
	assert.Equal(t, "Bearer tok-2", call.Headers["authorization"])
	assert.Equal(t, `{"subject_token": "tok-2"}`, string(call.Body))
}
