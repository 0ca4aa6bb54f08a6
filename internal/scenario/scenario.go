// Package scenario defines the immutable description of one race test:
// the target operation, the contended key, the burst shape, the
// classification rules, the invariant, and the ground-truth probe.
//
// Scenarios are defined in YAML files:
//
//	name: tenant-slug-race
//	description: "Concurrent tenant creation must enforce slug uniqueness"
//	target:
//	  transport: http
//	  method: POST
//	  url: http://localhost:8080/api/v1/tenants
//	  headers:
//	    Authorization: "Bearer {{token}}"
//	    Content-Type: application/json
//	  body: '{"name": "Race Tenant {{seq}}", "slug": "{{key}}"}'
//	key: race-test-slug
//	requests: 20
//	concurrency: 20
//	call_timeout: 10s
//	run_deadline: 60s
//	credentials:
//	  env: STAMPEDE_TOKEN
//	classify:
//	  - when: {status: 201}
//	    verdict: success
//	  - when: {status: 409}
//	    verdict: expected_conflict
//	  - when: {status: 500, body_contains: "1062"}
//	    verdict: expected_conflict
//	invariant:
//	  success: {max: 1}
//	  ground_truth_must_match: true
//	ground_truth:
//	  driver: sqlite3
//	  dsn: file:auth.db
//	  query: "SELECT COUNT(*) FROM tenants WHERE slug = ?"
//	  require_clean: true
//
// Files are decoded strictly (unknown fields are rejected, catching
// typos), validated field by field, and checked against an embedded CUE
// schema. A loaded scenario is never mutated; the same file always
// produces the same dispatch plan.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/stampede-io/stampede/internal/classify"
	"github.com/stampede-io/stampede/internal/invariant"
)

// Transport names for Target.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// defaultCallTimeout applies when a scenario omits call_timeout. A
// per-call timeout is mandatory so a hung call cannot stall the report.
const defaultCallTimeout = 10 * time.Second

// Scenario is one race test. Immutable once loaded.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains which guarantee this scenario verifies.
	Description string `yaml:"description"`

	// Target is the operation under test.
	Target Target `yaml:"target"`

	// Key is the contended key template shared by every call. The
	// placeholders {{uuid}} and {{token}} are resolved once per run so
	// all N calls still compete over one value. The resolved key is
	// NFC-normalized so byte-distinct spellings of the same key cannot
	// dodge contention.
	Key string `yaml:"key"`

	// Requests is N, the number of concurrent operations.
	Requests int `yaml:"requests"`

	// Concurrency bounds the worker pool. Defaults to Requests. When
	// smaller than Requests, excess units queue and release in waves.
	Concurrency int `yaml:"concurrency,omitempty"`

	// StaggerRPS optionally paces call starts. Zero means full burst.
	StaggerRPS float64 `yaml:"stagger_rps,omitempty"`

	// CallTimeout is the per-call deadline. Defaults to 10s.
	CallTimeout Duration `yaml:"call_timeout,omitempty"`

	// RunDeadline bounds the whole run. Zero means no deadline.
	RunDeadline Duration `yaml:"run_deadline,omitempty"`

	// Credentials names the external source of the bearer token or API
	// key consumed by {{token}}. The harness never mints credentials.
	Credentials *Credentials `yaml:"credentials,omitempty"`

	// Classify is the ordered rule set, first match wins.
	Classify []classify.Rule `yaml:"classify"`

	// Invariant is the predicate evaluated over the verdict counts.
	Invariant invariant.Invariant `yaml:"invariant"`

	// GroundTruth optionally configures the system-of-record probe.
	GroundTruth *GroundTruth `yaml:"ground_truth,omitempty"`
}

// Target describes the operation under test for one transport.
type Target struct {
	// Transport is "http" or "grpc".
	Transport string `yaml:"transport"`

	// Method is the HTTP verb (http only).
	Method string `yaml:"method,omitempty"`

	// URL is the endpoint (http only). Supports placeholders.
	URL string `yaml:"url,omitempty"`

	// Headers are sent with every call (http only). Values support
	// placeholders, typically "Bearer {{token}}".
	Headers map[string]string `yaml:"headers,omitempty"`

	// Body is the request payload template.
	Body string `yaml:"body,omitempty"`

	// Address is the host:port of the gRPC endpoint (grpc only).
	Address string `yaml:"address,omitempty"`

	// FullMethod is the unary method name, e.g.
	// "/auth.TokenExchange/ExchangeToken" (grpc only).
	FullMethod string `yaml:"full_method,omitempty"`

	// Metadata is attached to every call (grpc only). Values support
	// placeholders.
	Metadata map[string]string `yaml:"metadata,omitempty"`

	// TLS enables transport security (grpc only).
	TLS bool `yaml:"tls,omitempty"`

	// InsecureSkipVerify skips certificate verification (grpc only).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
}

// Credentials names where the opaque credential comes from. Exactly one
// source must be set.
type Credentials struct {
	// Env is an environment variable holding the credential.
	Env string `yaml:"env,omitempty"`

	// File is a path to a file holding the credential. Leading and
	// trailing whitespace is trimmed.
	File string `yaml:"file,omitempty"`
}

// GroundTruth configures the system-of-record probe. Either the SQL
// fields (driver, dsn, query) or the HTTP fields (url, count_path) must
// be set, not both.
type GroundTruth struct {
	// Driver is a database/sql driver name, e.g. "sqlite3".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific data source name.
	DSN string `yaml:"dsn,omitempty"`

	// Query is a COUNT query with one ? placeholder for the key.
	Query string `yaml:"query,omitempty"`

	// URL is a search endpoint with a {{key}} placeholder.
	URL string `yaml:"url,omitempty"`

	// Headers are sent with the search request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// CountPath is the gjson path of the count in the search response,
	// e.g. "pagination.total".
	CountPath string `yaml:"count_path,omitempty"`

	// RequireClean aborts the scenario before dispatch when the
	// pre-burst probe finds existing records for the key. Running
	// against dirty state silently would corrupt the verdicts.
	RequireClean bool `yaml:"require_clean,omitempty"`
}

// SQL reports whether the probe is SQL-backed.
func (g *GroundTruth) SQL() bool {
	return g.Driver != "" || g.DSN != "" || g.Query != ""
}

// Load reads, decodes, and validates a scenario file. The YAML is
// decoded strictly and additionally checked against the embedded CUE
// schema before field validation.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	if err := ValidateSchema(path, data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Concurrency == 0 {
		s.Concurrency = s.Requests
	}
	if s.CallTimeout == 0 {
		s.CallTimeout = Duration(defaultCallTimeout)
	}
	if s.Target.Transport == TransportHTTP && s.Target.Method == "" {
		s.Target.Method = "POST"
	}
}

// Validate checks required fields and cross-field consistency.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Key == "" {
		return fmt.Errorf("key is required")
	}
	if s.Requests < 1 {
		return fmt.Errorf("requests must be at least 1")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if s.StaggerRPS < 0 {
		return fmt.Errorf("stagger_rps must be non-negative")
	}
	if s.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if s.RunDeadline < 0 {
		return fmt.Errorf("run_deadline must be non-negative")
	}

	if err := s.validateTarget(); err != nil {
		return err
	}

	if s.Credentials != nil {
		if (s.Credentials.Env == "") == (s.Credentials.File == "") {
			return fmt.Errorf("credentials: exactly one of env or file is required")
		}
	}

	if len(s.Classify) == 0 {
		return fmt.Errorf("classify rules are required")
	}
	if _, err := classify.NewRuleSet(s.Classify); err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	if err := s.Invariant.Validate(); err != nil {
		return fmt.Errorf("invariant: %w", err)
	}

	if s.GroundTruth != nil {
		if err := s.validateGroundTruth(); err != nil {
			return err
		}
	} else if s.Invariant.GroundTruthMustMatch {
		return fmt.Errorf("invariant requires ground truth but no ground_truth probe is configured")
	}

	return nil
}

func (s *Scenario) validateTarget() error {
	switch s.Target.Transport {
	case TransportHTTP:
		if s.Target.URL == "" {
			return fmt.Errorf("target: url is required for http")
		}
		if s.Target.Address != "" || s.Target.FullMethod != "" {
			return fmt.Errorf("target: address/full_method are grpc fields")
		}
	case TransportGRPC:
		if s.Target.Address == "" {
			return fmt.Errorf("target: address is required for grpc")
		}
		if s.Target.FullMethod == "" {
			return fmt.Errorf("target: full_method is required for grpc")
		}
		if s.Target.URL != "" || s.Target.Method != "" {
			return fmt.Errorf("target: url/method are http fields")
		}
	case "":
		return fmt.Errorf("target: transport is required")
	default:
		return fmt.Errorf("target: unknown transport %q", s.Target.Transport)
	}
	return nil
}

func (s *Scenario) validateGroundTruth() error {
	g := s.GroundTruth
	sqlSet := g.SQL()
	httpSet := g.URL != "" || g.CountPath != ""
	switch {
	case sqlSet && httpSet:
		return fmt.Errorf("ground_truth: configure either sql (driver/dsn/query) or http (url/count_path), not both")
	case sqlSet:
		if g.Driver == "" || g.DSN == "" || g.Query == "" {
			return fmt.Errorf("ground_truth: driver, dsn, and query are all required for a sql probe")
		}
	case httpSet:
		if g.URL == "" || g.CountPath == "" {
			return fmt.Errorf("ground_truth: url and count_path are both required for an http probe")
		}
	default:
		return fmt.Errorf("ground_truth: no probe configured")
	}
	return nil
}

// NormalizeKey returns the NFC-normalized form of a resolved contended
// key. Identity systems normalize slugs and tokens the same way; two
// byte-distinct spellings of one key must contend, not coexist.
func NormalizeKey(key string) string {
	return norm.NFC.String(key)
}
