package llm

import (
	"fmt"
	"sort"
)

// ProviderRegistry resolves provider names to stream clients.
// Providers are registered once at startup; lookup is read-only afterwards.
type ProviderRegistry struct {
	clients map[string]StreamClient
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{clients: make(map[string]StreamClient)}
}

// Register adds a client under a provider name, replacing any existing one.
func (r *ProviderRegistry) Register(provider string, client StreamClient) {
	r.clients[provider] = client
}

// ForProvider implements ClientResolver.
func (r *ProviderRegistry) ForProvider(provider string) (StreamClient, error) {
	client, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("no stream client registered for provider %q (have %v)", provider, r.providerNames())
	}
	return client, nil
}

func (r *ProviderRegistry) providerNames() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ensure ProviderRegistry implements ClientResolver at compile time.
var _ ClientResolver = (*ProviderRegistry)(nil)
