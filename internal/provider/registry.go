package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source represents a single registered location source with its
// capabilities and status.
type Source struct {
	ID           string                `json:"id"`
	Kind         string                `json:"kind"`
	Status       string                `json:"status"`
	Capabilities *ProviderCapabilities `json:"capabilities"`
	LastSeen     time.Time             `json:"lastSeen,omitempty"`
}

// SourceList represents the response format for GET /providers.
type SourceList struct {
	ActiveProviderID string   `json:"activeProviderId"`
	Items            []Source `json:"items"`
}

// Registry manages the location source inventory and active selection.
type Registry struct {
	mu               sync.RWMutex
	sources          map[string]*Source
	activeProviderID string
	providers        map[string]ILocationProvider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:   make(map[string]*Source),
		providers: make(map[string]ILocationProvider),
	}
}

// Register adds a provider to the registry, loading its capabilities.
// The first registered provider becomes the active one.
func (r *Registry) Register(providerID, kind string, p ILocationProvider, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[providerID] = p

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	caps, err := p.Capabilities(ctx)
	status := "online"
	if err != nil {
		// A provider that cannot report capabilities is still registered,
		// it just starts offline until a fix proves otherwise.
		caps = &ProviderCapabilities{}
		status = "offline"
	}

	r.sources[providerID] = &Source{
		ID:           providerID,
		Kind:         kind,
		Status:       status,
		Capabilities: caps,
		LastSeen:     time.Now(),
	}

	if r.activeProviderID == "" {
		r.activeProviderID = providerID
	}

	return nil
}

// SetActive sets the active provider with existence check.
func (r *Registry) SetActive(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[providerID]; !exists {
		return fmt.Errorf("provider %s not found", providerID)
	}

	r.activeProviderID = providerID
	return nil
}

// GetActive returns the active provider ID.
func (r *Registry) GetActive() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeProviderID
}

// ActiveProvider returns the provider for the active source.
func (r *Registry) ActiveProvider() (ILocationProvider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.activeProviderID == "" {
		return nil, "", fmt.Errorf("no active provider")
	}

	p, exists := r.providers[r.activeProviderID]
	if !exists {
		return nil, "", fmt.Errorf("no provider for active source %s", r.activeProviderID)
	}

	return p, r.activeProviderID, nil
}

// List returns the source list for the API.
func (r *Registry) List() *SourceList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		items = append(items, *src)
	}

	return &SourceList{
		ActiveProviderID: r.activeProviderID,
		Items:            items,
	}
}

// GetSource returns a specific source by ID.
func (r *Registry) GetSource(providerID string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, exists := r.sources[providerID]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", providerID)
	}

	return src, nil
}

// UpdateStatus updates the status of a source.
func (r *Registry) UpdateStatus(providerID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, exists := r.sources[providerID]
	if !exists {
		return fmt.Errorf("provider %s not found", providerID)
	}

	src.Status = status
	src.LastSeen = time.Now()

	return nil
}

// Remove removes a provider from the registry. If it was the active
// provider, the active selection is cleared.
func (r *Registry) Remove(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[providerID]; !exists {
		return fmt.Errorf("provider %s not found", providerID)
	}

	delete(r.sources, providerID)
	delete(r.providers, providerID)

	if r.activeProviderID == providerID {
		r.activeProviderID = ""
	}

	return nil
}
