package runner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/checks"
	"github.com/abdul-hamid-achik/schemaprobe/packages/depstore"
	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
	"github.com/abdul-hamid-achik/schemaprobe/packages/httpclient"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// derandomizedSeed is the fixed seed used when derandomized generation is
// requested.
const derandomizedSeed = 42

// AuthConfig selects the authentication scheme for the target.
type AuthConfig struct {
	User string
	Pass string
	// Type is "basic" or "digest"; empty means basic.
	Type string
}

// Config is the full configuration surface of the orchestrator entry point.
type Config struct {
	// Exactly one of SchemaLocation, SchemaData or Schema must be set.
	SchemaLocation string
	SchemaData     []byte
	Schema         *schema.Schema

	// App points the run at an in-process handler instead of the network.
	App     http.Handler
	BaseURL string

	Checks    []checks.Check
	Workers   int
	Seed      int64
	ExitFirst bool

	Auth    *AuthConfig
	Headers map[string]string
	// RequestTimeout is in milliseconds.
	RequestTimeout int
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64

	EndpointFilter string
	MethodFilter   string
	TagFilter      string
	ValidateSchema bool

	Dependencies DependencyMap

	// Generation tuning.
	MaxExamples int
	MaxAttempts int
	Derandomize bool
	Mode        generator.Mode
}

// Execute loads the schema, resolves the runner variant and streams the run.
// No error escapes: setup failures arrive as a single InternalError event and
// the channel is closed.
func Execute(ctx context.Context, cfg Config) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		r, err := New(cfg)
		if err != nil {
			out <- InternalError{Err: err}
			return
		}
		r.execute(ctx, out)
	}()
	return out
}

// New resolves configuration into one concrete runner. The scheduling kind
// and transport are selected here, once, never re-dispatched during the run.
func New(cfg Config) (*Runner, error) {
	sch, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}

	transport, err := buildTransport(sch, cfg)
	if err != nil {
		return nil, err
	}

	checkList := cfg.Checks
	if len(checkList) == 0 {
		checkList = checks.Default()
	}

	seed := cfg.Seed
	if cfg.Derandomize {
		seed = derandomizedSeed
	}
	if seed == 0 {
		// Resolve here so the seed recorded on results is the one that
		// actually drove generation and the run can be replayed.
		seed = time.Now().UnixNano()
	}
	strategyOpts := []generator.StrategyOption{}
	if cfg.MaxAttempts > 0 {
		strategyOpts = append(strategyOpts, generator.WithMaxAttempts(cfg.MaxAttempts))
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	kind := KindSingleThread
	if workers > 1 {
		kind = KindPool
	}
	if kind == KindPool && cfg.Dependencies != nil {
		// Cross-endpoint write-before-read ordering cannot be guaranteed
		// across workers.
		return nil, fmt.Errorf("dependency ordering requires a single worker, got %d", workers)
	}

	maxExamples := cfg.MaxExamples
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}

	return &Runner{
		schema:      sch,
		strategy:    generator.NewStrategy(seed, strategyOpts...),
		executor:    NewExecutor(transport, checkList, cfg.Dependencies, depstore.New()),
		kind:        kind,
		workers:     workers,
		maxExamples: maxExamples,
		exitFirst:   cfg.ExitFirst,
		seed:        seed,
		mode:        cfg.Mode,
	}, nil
}

func loadSchema(cfg Config) (*schema.Schema, error) {
	opts := schema.LoadOptions{
		BaseURL:        cfg.BaseURL,
		App:            cfg.App,
		ValidateSchema: cfg.ValidateSchema,
		Endpoint:       cfg.EndpointFilter,
		Method:         cfg.MethodFilter,
		Tag:            cfg.TagFilter,
	}
	switch {
	case cfg.Schema != nil:
		return cfg.Schema, nil
	case cfg.SchemaData != nil:
		return schema.FromData(cfg.SchemaData, opts)
	case cfg.SchemaLocation != "":
		return schema.Load(cfg.SchemaLocation, opts)
	default:
		return nil, fmt.Errorf("no schema given: set SchemaLocation, SchemaData or Schema")
	}
}

func buildTransport(sch *schema.Schema, cfg Config) (httpclient.Transport, error) {
	if sch.App != nil {
		opts := []httpclient.InProcessOption{}
		if len(cfg.Headers) > 0 {
			opts = append(opts, httpclient.WithInProcessHeaders(cfg.Headers))
		}
		if cfg.Auth != nil {
			if cfg.Auth.Type == "digest" {
				return nil, fmt.Errorf("digest auth is not supported for in-process targets")
			}
			opts = append(opts, httpclient.WithInProcessBasicAuth(cfg.Auth.User, cfg.Auth.Pass))
		}
		return httpclient.NewInProcess(sch.App, opts...), nil
	}

	clientOpts := []httpclient.ClientOption{}
	if cfg.RequestTimeout > 0 {
		// The configuration surface takes milliseconds.
		clientOpts = append(clientOpts, httpclient.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Millisecond))
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, httpclient.WithDefaultHeaders(cfg.Headers))
	}
	if cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, httpclient.WithRateLimit(cfg.RateLimit))
	}
	if cfg.Auth != nil {
		switch cfg.Auth.Type {
		case "", "basic":
			clientOpts = append(clientOpts, httpclient.WithBasicAuth(cfg.Auth.User, cfg.Auth.Pass))
		case "digest":
			clientOpts = append(clientOpts, httpclient.WithDigestAuth(cfg.Auth.User, cfg.Auth.Pass))
		default:
			return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
		}
	}
	return httpclient.NewClient(clientOpts...), nil
}
