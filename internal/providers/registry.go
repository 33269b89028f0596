package providers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
)

// Deps are the shared collaborators handed to every Builder.
type Deps struct {
	Logger    zerolog.Logger
	Transport http.RoundTripper
	Now       func() time.Time
}

// Builder constructs the adapter for one configured provider key.
type Builder func(key string, cfg config.ProviderConfig, deps Deps) (Adapter, error)

type entry struct {
	key   string
	typ   string
	mode  string
	raw   Adapter
	guard *guard
}

// Registry resolves provider keys to guarded adapters. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	entries map[string]*entry
	keys    []string
}

type registryOptions struct {
	deps    Deps
	metrics *observability.Metrics
}

type RegistryOption func(*registryOptions)

func WithLogger(l zerolog.Logger) RegistryOption {
	return func(o *registryOptions) { o.deps.Logger = l }
}

func WithTransport(rt http.RoundTripper) RegistryOption {
	return func(o *registryOptions) { o.deps.Transport = rt }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) { o.deps.Now = now }
}

func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(o *registryOptions) { o.metrics = m }
}

// NewRegistry builds an adapter for every enabled provider. Any failure is a
// configuration error and no registry is returned.
func NewRegistry(cfgs map[string]config.ProviderConfig, builders map[string]Builder, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{
		deps: Deps{
			Logger:    zerolog.Nop(),
			Transport: http.DefaultTransport,
			Now:       time.Now,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{entries: make(map[string]*entry)}
	for key, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		key = NormalizeKey(key)
		typ := NormalizeKey(cfg.Type)
		if typ == "" {
			typ = key
		}

		build, ok := builders[typ]
		if !ok {
			return nil, domainErrors.NewConfigurationError(key, fmt.Sprintf("unknown provider type %q", typ))
		}
		adapter, err := build(key, cfg, o.deps)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", key, err)
		}

		g, err := newGuard(key, adapter, guardSettings{
			Threshold: cfg.BreakerThreshold,
			OpenFor:   cfg.BreakerTimeout,
			Timeout:   cfg.Timeout,
		}, o.metrics)
		if err != nil {
			return nil, err
		}

		mode := config.ModeSandbox
		if cfg.IsLive() {
			mode = config.ModeLive
		}
		r.entries[key] = &entry{key: key, typ: typ, mode: mode, raw: adapter, guard: g}
		r.keys = append(r.keys, key)

		o.deps.Logger.Info().
			Str("provider", key).
			Str("type", typ).
			Str("mode", mode).
			Msg("payment provider registered")
	}
	sort.Strings(r.keys)
	return r, nil
}

// NewStaticRegistry registers ready-made adapters under their keys, with
// default guard settings. Intended for tests and local tooling.
func NewStaticRegistry(adapters map[string]Adapter) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry)}
	for key, a := range adapters {
		key = NormalizeKey(key)
		g, err := newGuard(key, a, guardSettings{}, nil)
		if err != nil {
			return nil, err
		}
		r.entries[key] = &entry{key: key, typ: key, mode: config.ModeSandbox, raw: a, guard: g}
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)
	return r, nil
}

// NormalizeKey is the canonical form of a provider key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *Registry) lookup(key string) (*entry, error) {
	e, ok := r.entries[NormalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrUnknownProvider, key)
	}
	return e, nil
}

// Get returns the guarded adapter for key.
func (r *Registry) Get(key string) (Adapter, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.guard, nil
}

// Customers returns the provider's CustomerManager, or ErrNotSupported.
func (r *Registry) Customers(key string) (CustomerManager, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	cm, ok := e.raw.(CustomerManager)
	if !ok {
		return nil, domainErrors.NewNotSupportedError(e.key, "customers")
	}
	return guardedCustomers{g: e.guard, inner: cm}, nil
}

// Products returns the provider's ProductManager, or ErrNotSupported.
func (r *Registry) Products(key string) (ProductManager, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	pm, ok := e.raw.(ProductManager)
	if !ok {
		return nil, domainErrors.NewNotSupportedError(e.key, "products")
	}
	return guardedProducts{g: e.guard, inner: pm}, nil
}

// Verifier returns the provider's webhook signature verifier. ok is false
// when the provider does not sign notifications.
func (r *Registry) Verifier(key string) (WebhookVerifier, bool, error) {
	e, err := r.lookup(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := e.raw.(WebhookVerifier)
	return v, ok, nil
}

// Has reports whether key names a registered provider.
func (r *Registry) Has(key string) bool {
	_, ok := r.entries[NormalizeKey(key)]
	return ok
}

// Keys returns the registered provider keys, sorted.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

type Description struct {
	Key          string       `json:"key"`
	Type         string       `json:"type"`
	Kind         Kind         `json:"kind"`
	Mode         string       `json:"mode"`
	Capabilities Capabilities `json:"capabilities"`
}

func (r *Registry) Describe() []Description {
	out := make([]Description, 0, len(r.keys))
	for _, key := range r.keys {
		e := r.entries[key]
		out = append(out, Description{
			Key:          e.key,
			Type:         e.typ,
			Kind:         e.raw.Kind(),
			Mode:         e.mode,
			Capabilities: CapabilitiesOf(e.raw),
		})
	}
	return out
}
