package generator

import (
	"fmt"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// Location names a parameter location on an endpoint. Hook registration and
// generator construction are keyed by it.
type Location string

const (
	LocPathParameters Location = "path_parameters"
	LocHeaders        Location = "headers"
	LocCookies        Location = "cookies"
	LocQuery          Location = "query"
	LocBody           Location = "body"
	LocFormData       Location = "form_data"
)

// Generator produces one candidate value per call.
type Generator func() (any, error)

// Hook transforms a location generator. Hooks registered globally run before
// hooks registered on a Strategy instance.
type Hook func(Generator) Generator

var (
	globalMu    sync.RWMutex
	globalHooks = make(map[Location]Hook)
)

// RegisterHook installs a process-wide hook for a location.
func RegisterHook(loc Location, hook Hook) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHooks[loc] = hook
}

// UnregisterAllHooks removes every global hook. Intended for tests.
func UnregisterAllHooks() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHooks = make(map[Location]Hook)
}

func globalHook(loc Location) Hook {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHooks[loc]
}

// DefaultMaxAttempts bounds how many candidates a location filter may reject
// before generation is considered unsatisfiable.
const DefaultMaxAttempts = 100

// Strategy builds constrained random case generators for endpoints.
type Strategy struct {
	source      Source
	maxAttempts int

	mu    sync.RWMutex
	hooks map[Location]Hook
}

type StrategyOption func(*Strategy)

// WithSource replaces the default randomized source.
func WithSource(src Source) StrategyOption {
	return func(s *Strategy) {
		s.source = src
	}
}

// WithMaxAttempts overrides the filter rejection budget.
func WithMaxAttempts(n int) StrategyOption {
	return func(s *Strategy) {
		s.maxAttempts = n
	}
}

// NewStrategy creates a strategy seeded for reproducible generation. A zero
// seed picks one from the clock.
func NewStrategy(seed int64, opts ...StrategyOption) *Strategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Strategy{
		source:      NewSource(seed),
		maxAttempts: DefaultMaxAttempts,
		hooks:       make(map[Location]Hook),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHook installs a hook local to this strategy instance.
func (s *Strategy) RegisterHook(loc Location, hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[loc] = hook
}

func (s *Strategy) instanceHook(loc Location) Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks[loc]
}

// Iterator yields concrete cases for one endpoint.
type Iterator struct {
	endpoint   *schema.Endpoint
	generators map[Location]Generator
}

// Build translates an endpoint's parameter schemas into a case iterator.
// GET operations that declare a body are rejected as invalid schemas when
// schema validation is on; otherwise the body is silently dropped.
func (s *Strategy) Build(endpoint *schema.Endpoint, mode Mode) (*Iterator, error) {
	body := endpoint.Body
	if endpoint.Method == "GET" && body != nil {
		if endpoint.ValidateSchema {
			return nil, &schema.InvalidSchemaError{Reason: "body parameters are defined for GET request"}
		}
		body = nil
	}

	generators := make(map[Location]Generator)
	add := func(loc Location, sch *openapi3.Schema, accept func(any) bool, transform func(any) any) {
		if sch == nil {
			return
		}
		gen := s.filtered(loc, sch, mode, accept, transform)
		if hook := globalHook(loc); hook != nil {
			gen = hook(gen)
		}
		if hook := s.instanceHook(loc); hook != nil {
			gen = hook(gen)
		}
		generators[loc] = gen
	}

	add(LocPathParameters, endpoint.PathParameters, acceptPathParameters, quotePathParameters)
	add(LocHeaders, endpoint.Headers, IsValidHeader, nil)
	add(LocCookies, endpoint.Cookies, IsValidHeader, nil)
	add(LocQuery, endpoint.Query, IsValidQuery, nil)
	add(LocBody, body, nil, nil)
	add(LocFormData, endpoint.FormData, IsValidFormData, nil)

	return &Iterator{endpoint: endpoint, generators: generators}, nil
}

func (s *Strategy) filtered(loc Location, sch *openapi3.Schema, mode Mode, accept func(any) bool, transform func(any) any) Generator {
	return func() (any, error) {
		for attempt := 0; attempt < s.maxAttempts; attempt++ {
			value, err := s.source.Generate(sch, mode)
			if err != nil {
				return nil, err
			}
			if accept != nil && !accept(value) {
				continue
			}
			if transform != nil {
				value = transform(value)
			}
			return value, nil
		}
		return nil, fmt.Errorf("%w: no acceptable value for %s after %d attempts", ErrUnsatisfiable, loc, s.maxAttempts)
	}
}

func acceptPathParameters(value any) bool {
	params, ok := value.(map[string]any)
	if !ok {
		return false
	}
	return FilterPathParameters(params)
}

func quotePathParameters(value any) any {
	params, ok := value.(map[string]any)
	if !ok {
		return value
	}
	return QuoteAll(params)
}

// Next generates one case. Generation failures surface as errors, never as
// partially filled cases.
func (it *Iterator) Next() (*schema.Case, error) {
	c := &schema.Case{Endpoint: it.endpoint}
	for loc, gen := range it.generators {
		value, err := gen()
		if err != nil {
			return nil, err
		}
		switch loc {
		case LocPathParameters:
			c.PathParameters, _ = value.(map[string]any)
		case LocHeaders:
			c.Headers = toStringMap(value)
		case LocCookies:
			c.Cookies = toStringMap(value)
		case LocQuery:
			c.Query, _ = value.(map[string]any)
		case LocBody:
			c.Body = value
		case LocFormData:
			c.FormData = value
		}
	}
	return c, nil
}

func toStringMap(value any) map[string]string {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		out[k] = s
	}
	return out
}
