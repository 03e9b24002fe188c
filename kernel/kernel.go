// Package kernel is the coordination kernel's top-level facade: a
// functional-options constructor that wires the security manager, a
// memory backend, the tool registry and dispatcher, an optional mesh
// transport, and observability into one value applications construct
// once at startup. It is grounded on the teacher's v2.New/v2.Option
// builder: a private builder struct accumulated by Option functions,
// validated once at the end of New.
package kernel

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaykit/kernel/mesh"
	"github.com/relaykit/kernel/memory"
	"github.com/relaykit/kernel/observability"
	"github.com/relaykit/kernel/security"
	"github.com/relaykit/kernel/tool"
	"github.com/relaykit/kernel/tool/standard"
)

// Kernel bundles everything a coordinator needs, constructed once and
// injected into application code rather than reached through package
// globals.
type Kernel struct {
	Security   *security.Manager
	Memory     memory.Backend
	Tools      *tool.Registry
	Dispatcher *tool.Dispatcher
	Mesh       mesh.Transport
	Tracer     *observability.Tracer
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

type builder struct {
	policy        security.Policy
	policySet     bool
	memoryBackend memory.Backend
	tools         []tool.Tool
	standardHTTP  bool
	rateLimiter   security.RateLimiter
	transport     mesh.Transport
	tracing       observability.TracingConfig
	logger        *slog.Logger
	registerer    prometheus.Registerer
}

// Option configures a Kernel under construction.
type Option func(*builder) error

// WithPolicy sets the security policy directly.
func WithPolicy(p security.Policy) Option {
	return func(b *builder) error {
		b.policy = p
		b.policySet = true
		return nil
	}
}

// WithPolicyFile loads and validates the security policy from a TOML file.
func WithPolicyFile(path string) Option {
	return func(b *builder) error {
		policy, err := security.LoadPolicy(path)
		if err != nil {
			return err
		}
		b.policy = policy
		b.policySet = true
		return nil
	}
}

// WithMemoryBackend sets the memory backend the coordinator will persist
// updates through.
func WithMemoryBackend(backend memory.Backend) Option {
	return func(b *builder) error {
		b.memoryBackend = backend
		return nil
	}
}

// WithTool registers a single tool.
func WithTool(t tool.Tool) Option {
	return func(b *builder) error {
		b.tools = append(b.tools, t)
		return nil
	}
}

// WithTools registers multiple tools.
func WithTools(tools ...tool.Tool) Option {
	return func(b *builder) error {
		b.tools = append(b.tools, tools...)
		return nil
	}
}

// WithStandardHTTPTools registers the HttpGet/HttpPost standard tools,
// constructed from the kernel's active policy (WithPolicy/WithPolicyFile, or
// DefaultPolicy if neither is set) so the policy's http.timeout_seconds,
// http.user_agent, http.allow_methods, and http.max_response_size_mb keys
// actually govern the tools dispatch runs, instead of requiring the caller
// to build and wire them by hand with WithTool.
func WithStandardHTTPTools() Option {
	return func(b *builder) error {
		b.standardHTTP = true
		return nil
	}
}

// WithRateLimiter wires rl into the security manager, so every dispatch is
// checked against it ahead of the resource tracker's concurrency permit.
func WithRateLimiter(rl security.RateLimiter) Option {
	return func(b *builder) error {
		b.rateLimiter = rl
		return nil
	}
}

// WithMeshTransport sets the mesh transport.
func WithMeshTransport(transport mesh.Transport) Option {
	return func(b *builder) error {
		b.transport = transport
		return nil
	}
}

// WithTracing enables OpenTelemetry tracing under serviceName.
func WithTracing(serviceName string) Option {
	return func(b *builder) error {
		b.tracing = observability.TracingConfig{Enabled: true, ServiceName: serviceName, SamplingRate: 1.0}
		return nil
	}
}

// WithLogger sets the process-wide structured logger. Defaults to a
// discard logger if never set.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) error {
		b.logger = logger
		return nil
	}
}

// WithMetricsRegisterer sets the Prometheus registerer metrics are
// registered against. Defaults to prometheus.DefaultRegisterer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(b *builder) error {
		b.registerer = reg
		return nil
	}
}

// New builds a Kernel from opts. The security policy comes from WithPolicy
// or WithPolicyFile and falls back to security.DefaultPolicy when neither is
// given; everything else likewise defaults to the kernel's deny-by-default,
// in-process posture.
func New(ctx context.Context, opts ...Option) (*Kernel, error) {
	b := &builder{}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if !b.policySet {
		b.policy = security.DefaultPolicy()
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.registerer == nil {
		b.registerer = prometheus.DefaultRegisterer
	}
	if b.memoryBackend == nil {
		b.memoryBackend = memory.NewInProcess()
	}

	manager := security.NewManager(b.policy, b.logger)
	if b.rateLimiter != nil {
		manager.SetRateLimiter(b.rateLimiter)
	}

	if b.standardHTTP {
		b.tools = append(b.tools,
			standard.NewHTTPGetToolFromPolicy(b.policy.HTTP),
			standard.NewHTTPPostToolFromPolicy(b.policy.HTTP),
		)
	}

	registry := tool.NewRegistry()
	for _, t := range b.tools {
		if err := registry.Register(t); err != nil {
			manager.Close()
			return nil, fmt.Errorf("kernel: failed to register tool: %w", err)
		}
	}

	tracer, err := observability.NewTracer(ctx, &b.tracing)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("kernel: failed to start tracer: %w", err)
	}

	return &Kernel{
		Security:   manager,
		Memory:     b.memoryBackend,
		Tools:      registry,
		Dispatcher: tool.NewDispatcher(registry, manager),
		Mesh:       b.transport,
		Tracer:     tracer,
		Metrics:    observability.NewMetrics(b.registerer),
		Logger:     b.logger,
	}, nil
}

// Close releases the kernel's owned resources: the security manager's
// audit sink and, if tracing was enabled, the tracer provider.
func (k *Kernel) Close(ctx context.Context) error {
	k.Security.Close()
	if k.Tracer != nil {
		return k.Tracer.Shutdown(ctx)
	}
	return nil
}
