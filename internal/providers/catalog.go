package providers

import (
	"context"
	"slices"
	"sync"
	"time"

	"growth_quest/internal/cache"
	"growth_quest/internal/utils"
)

const (
	DefaultCatalogTTL       = 10 * time.Minute
	DefaultCatalogCacheSize = 16
)

// staticModels are served whenever live discovery is unavailable.
var staticModels = map[Identity][]string{
	Gemini: {
		"gemini-2.0-flash",
		"gemini-2.0-flash-lite",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	},
	OpenRouter: {
		"meta-llama/llama-3.3-70b-instruct:free",
		"google/gemini-2.0-flash-exp:free",
		"mistralai/mistral-7b-instruct:free",
		"deepseek/deepseek-chat",
	},
	Nvidia: {
		"meta/llama-3.1-70b-instruct",
		"meta/llama-3.1-8b-instruct",
		"mistralai/mixtral-8x7b-instruct-v0.1",
		"nvidia/llama-3.1-nemotron-70b-instruct",
	},
}

// StaticModels returns the provider's built-in model list
func StaticModels(id Identity) []ModelDescriptor {
	ids := staticModels[id]
	out := make([]ModelDescriptor, 0, len(ids))
	for _, m := range ids {
		out = append(out, ModelDescriptor{ID: m, DisplayName: m, SupportsGeneration: true})
	}
	return out
}

// Catalog lists a provider's generation-capable models. Listings are cached
// per provider in a shared LRU.
type Catalog struct {
	id     Identity
	cache  *cache.LRU[[]ModelDescriptor]
	logger *utils.Logger

	mu        sync.RWMutex
	transport Transport
}

// NewCatalog creates a catalog for id. A nil transport means unconfigured.
func NewCatalog(id Identity, transport Transport, c *cache.LRU[[]ModelDescriptor], logger *utils.Logger) *Catalog {
	if c == nil {
		c = cache.NewLRU[[]ModelDescriptor](DefaultCatalogCacheSize, DefaultCatalogTTL)
	}
	if logger == nil {
		logger = utils.NewLogger("catalog")
	}
	return &Catalog{id: id, cache: c, logger: logger, transport: transport}
}

// SetTransport swaps the transport used for discovery and drops the cached listing
func (c *Catalog) SetTransport(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	c.Invalidate()
}

// Invalidate drops the cached listing
func (c *Catalog) Invalidate() {
	c.cache.Delete(string(c.id))
}

// Models returns generation-capable models in listing order. It never
// fails: discovery problems fall back to StaticModels.
func (c *Catalog) Models(ctx context.Context) []ModelDescriptor {
	if cached, ok := c.cache.Get(string(c.id)); ok {
		return slices.Clone(cached)
	}

	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()

	if t == nil {
		c.logger.Debug("Provider not configured, serving static models", "provider", c.id)
		return StaticModels(c.id)
	}

	models, err := c.discover(ctx, t)
	if err != nil {
		c.logger.Warn("Model discovery failed, serving static models", "provider", c.id, "error", err)
		return StaticModels(c.id)
	}
	if len(models) == 0 {
		c.logger.Warn("Model discovery returned no generation models, serving static models", "provider", c.id)
		return StaticModels(c.id)
	}

	c.cache.Set(string(c.id), slices.Clone(models))
	return models
}

func (c *Catalog) discover(ctx context.Context, t Transport) (models []ModelDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			models, err = nil, &DiscoveryError{Provider: c.id, Cause: &TransportError{Provider: c.id, Op: OpListModels, Message: "panic during listing"}}
		}
	}()

	raw, err := t.ListModels(ctx)
	if err != nil {
		return nil, &DiscoveryError{Provider: c.id, Cause: err}
	}
	return filterGenerationModels(raw), nil
}

// filterGenerationModels keeps generation-capable entries, first occurrence wins.
func filterGenerationModels(raw []ModelDescriptor) []ModelDescriptor {
	seen := make(map[string]struct{}, len(raw))
	out := make([]ModelDescriptor, 0, len(raw))
	for _, m := range raw {
		if !m.SupportsGeneration || m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
