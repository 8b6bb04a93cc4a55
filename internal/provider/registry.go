// Package provider maps capability tags to provider factories. Provider
// implementations register themselves at init time; the daemon resolves
// the providers named in its configuration after the license gate passes.
//
// This replaces loading providers by probing import paths at runtime: the
// set of constructible providers is fixed when the binary is linked, and a
// typo in configuration is an error naming the known alternatives rather
// than an import failure.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Capability tags one slot in the voice pipeline.
type Capability string

const (
	ASR    Capability = "asr"
	TTS    Capability = "tts"
	LLM    Capability = "llm"
	VLLM   Capability = "vllm"
	VAD    Capability = "vad"
	Intent Capability = "intent"
	Memory Capability = "memory"
)

// Capabilities returns every known capability tag, in pipeline order.
func Capabilities() []Capability {
	return []Capability{ASR, TTS, LLM, VLLM, VAD, Intent, Memory}
}

// Valid reports whether c is a known capability tag.
func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Provider is the narrow contract the daemon holds on a constructed
// provider. The real work happens behind capability-specific interfaces
// owned by the pipeline; this package only constructs and releases.
type Provider interface {
	// Name reports the registered implementation name.
	Name() string

	// Close releases resources held by the provider.
	Close() error
}

// Factory constructs a provider from its configured options. The name is
// the registration name, passed through so one factory can serve aliases.
type Factory func(ctx context.Context, name string, options map[string]any) (Provider, error)

// Registry is a thread-safe capability/name to factory mapping.
type Registry struct {
	mu        sync.RWMutex
	factories map[Capability]map[string]Factory
}

// NewRegistry creates an empty registry. Most code uses the package-level
// default; tests build their own to stay independent.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Capability]map[string]Factory)}
}

// Register adds a factory under a capability and name. Registration runs
// from init functions, so mistakes are programmer errors: a duplicate
// name, an unknown capability, an empty name or a nil factory all panic.
func (r *Registry) Register(cap Capability, name string, factory Factory) {
	if !cap.Valid() {
		panic(fmt.Sprintf("provider: Register with unknown capability %q", cap))
	}
	if name == "" {
		panic(fmt.Sprintf("provider: Register %s provider with empty name", cap))
	}
	if factory == nil {
		panic(fmt.Sprintf("provider: Register %s provider %q with nil factory", cap, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.factories[cap]
	if !ok {
		byName = make(map[string]Factory)
		r.factories[cap] = byName
	}
	if _, exists := byName[name]; exists {
		panic(fmt.Sprintf("provider: duplicate registration of %s provider %q", cap, name))
	}
	byName[name] = factory
}

// New constructs the named provider. An unknown capability or name is a
// configuration mistake and returns an error naming the known choices.
func (r *Registry) New(ctx context.Context, cap Capability, name string, options map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cap][name]
	r.mu.RUnlock()

	if !ok {
		known := r.Names(cap)
		if len(known) == 0 {
			return nil, fmt.Errorf("unsupported %s provider %q: no %s providers are registered", cap, name, cap)
		}
		return nil, fmt.Errorf("unsupported %s provider %q: check the configured type (known: %v)", cap, name, known)
	}

	p, err := factory(ctx, name, options)
	if err != nil {
		return nil, fmt.Errorf("construct %s provider %q: %w", cap, name, err)
	}
	return p, nil
}

// Names returns the registered provider names for a capability, sorted.
func (r *Registry) Names(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories[cap]))
	for name := range r.factories[cap] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultRegistry serves init-time registrations from provider packages.
var defaultRegistry = NewRegistry()

// Default returns the registry that init-time registrations land in.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the default registry.
func Register(cap Capability, name string, factory Factory) {
	defaultRegistry.Register(cap, name, factory)
}

// New constructs a provider from the default registry.
func New(ctx context.Context, cap Capability, name string, options map[string]any) (Provider, error) {
	return defaultRegistry.New(ctx, cap, name, options)
}

// Names lists the default registry's providers for a capability.
func Names(cap Capability) []string {
	return defaultRegistry.Names(cap)
}
