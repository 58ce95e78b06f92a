package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/schemaprobe/packages/checks"
	"github.com/abdul-hamid-achik/schemaprobe/packages/depstore"
	"github.com/abdul-hamid-achik/schemaprobe/packages/httpclient"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// DependencyRules declares, for one operation, which request fields are fed
// from previously stored responses and which response fields to store.
// References use the "method:path:field" form.
type DependencyRules struct {
	// Required maps a location kind (path_parameters, query, body) to
	// fieldName -> producer reference.
	Required map[string]map[string]string `yaml:"required"`
	// Store lists top-level response body fields to keep after a
	// storeable response.
	Store []string `yaml:"store"`
}

// DependencyMap wires operations together, keyed by "method:path".
type DependencyMap map[string]DependencyRules

// LoadDependencyMap reads a YAML dependency map from disk.
func LoadDependencyMap(path string) (DependencyMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dependency map: %w", err)
	}
	var deps DependencyMap
	if err := yaml.Unmarshal(data, &deps); err != nil {
		return nil, fmt.Errorf("parsing dependency map: %w", err)
	}
	return deps, nil
}

func (m DependencyMap) rulesFor(method, path string) (DependencyRules, bool) {
	if m == nil {
		return DependencyRules{}, false
	}
	rules, ok := m[strings.ToLower(method)+":"+strings.ToLower(path)]
	return rules, ok
}

// storeableLimit is the highest status code whose response body feeds the
// dependency store.
const storeableLimit = 204

// Executor runs one case over a transport, applying the dependency store
// before the call and after it.
type Executor struct {
	transport httpclient.Transport
	checks    []checks.Check
	deps      DependencyMap
	store     *depstore.Store
}

func NewExecutor(transport httpclient.Transport, checkList []checks.Check, deps DependencyMap, store *depstore.Store) *Executor {
	if store == nil {
		store = depstore.New()
	}
	return &Executor{
		transport: transport,
		checks:    checkList,
		deps:      deps,
		store:     store,
	}
}

// Store exposes the dependency store, mainly for tests.
func (e *Executor) Store() *depstore.Store { return e.store }

// Execute dispatches one case and evaluates the configured checks. A
// FailureGroup return means check failures; any other error is an execution
// error. The passed case is never mutated.
func (e *Executor) Execute(ctx context.Context, logger *slog.Logger, c *schema.Case, result *TestResult) error {
	c = e.applySessionHeaders(c)
	c = e.resolveDependencies(logger, c)

	req, err := httpclient.FromCase(c)
	if err != nil {
		return err
	}
	resp, err := e.transport.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.Method(), c.Path(), err)
	}
	result.StoreInteraction(c, resp)

	e.storeDependencies(logger, c, resp)

	return RunChecks(c, e.checks, result, resp)
}

// applySessionHeaders enforces the collision rule: when a generated header
// name matches a session-level default, the session's value wins. The
// rewrite keeps recorded interactions consistent with what was sent.
func (e *Executor) applySessionHeaders(c *schema.Case) *schema.Case {
	defaults := e.transport.DefaultHeaders()
	if len(defaults) == 0 || len(c.Headers) == 0 {
		return c
	}
	var clone *schema.Case
	for name := range c.Headers {
		if value, ok := defaults[name]; ok {
			if clone == nil {
				clone = c.Clone()
			}
			clone.Headers[name] = value
		}
	}
	if clone != nil {
		return clone
	}
	return c
}

// resolveDependencies substitutes declared request fields with stored
// producer values. Resolution is best-effort: a missing producer value
// leaves the generated value in place and never fails the case.
func (e *Executor) resolveDependencies(logger *slog.Logger, c *schema.Case) *schema.Case {
	rules, ok := e.deps.rulesFor(c.Method(), c.Path())
	if !ok || len(rules.Required) == 0 {
		return c
	}

	clone := c.Clone()
	for locationKind, fields := range rules.Required {
		for field, ref := range fields {
			key, producerField, err := depstore.ParseRef(ref)
			if err != nil {
				// Best effort: keep the generated value.
				logger.Debug("skipping malformed dependency reference", "ref", ref, "error", err)
				continue
			}
			value, err := e.store.Get(key, producerField)
			if err != nil {
				// Best effort: the producer has not run or failed.
				logger.Debug("dependency not resolved", "field", field, "ref", ref, "error", err)
				continue
			}
			switch locationKind {
			case "path_parameters":
				if clone.PathParameters == nil {
					clone.PathParameters = make(map[string]any)
				}
				clone.PathParameters[field] = value
			case "query":
				if clone.Query == nil {
					clone.Query = make(map[string]any)
				}
				clone.Query[field] = value
			case "body":
				if body, ok := clone.Body.(map[string]any); ok {
					body[field] = value
				}
			}
			logger.Debug("resolved dependency", "location", locationKind, "field", field, "ref", ref)
		}
	}
	return clone
}

// storeDependencies records declared response fields after a storeable
// response. Failures (non-JSON body, absent field) are discarded; storage is
// as best-effort as resolution.
func (e *Executor) storeDependencies(logger *slog.Logger, c *schema.Case, resp *httpclient.Response) {
	rules, ok := e.deps.rulesFor(c.Method(), c.Path())
	if !ok || len(rules.Store) == 0 || resp.StatusCode > storeableLimit {
		return
	}

	key := depstore.NewKey(c.Method(), c.Path())
	for _, field := range rules.Store {
		value := gjson.GetBytes(resp.Body, field)
		if !value.Exists() {
			logger.Debug("response field not stored", "field", field, "status", resp.StatusCode)
			continue
		}
		e.store.Store(key, field, value.Value())
		logger.Debug("stored response field", "field", field)
	}
}
