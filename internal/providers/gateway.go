package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"growth_quest/internal/cache"
	"growth_quest/internal/utils"
)

// Connection check parameters. A reply passes when it contains the token as a
// word or is shorter than ConnectionCheckMaxLen characters.
const (
	ConnectionCheckPrompt = "Reply with the single word: OK"
	ConnectionCheckToken  = "OK"
	ConnectionCheckMaxLen = 20

	DefaultRequestTimeout = 60 * time.Second
)

// GatewayConfig holds everything the gateway needs at construction
type GatewayConfig struct {
	Credentials      CredentialSet
	DefaultModels    map[Identity]string
	DefaultProvider  Identity
	RequestTimeout   time.Duration
	CatalogTTL       time.Duration
	CatalogCacheSize int
	Transport        Options
}

// Option customizes a Gateway
type Option func(*Gateway)

// WithFactory replaces the default transport factory
func WithFactory(f *Factory) Option {
	return func(g *Gateway) { g.factory = f }
}

// WithRecorder sends a GenerationEvent for every Generate call to r
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithLogger sets the gateway logger
func WithLogger(l *utils.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// ProviderStatus is a display row describing one provider
type ProviderStatus struct {
	Provider     Identity
	DisplayName  string
	Configured   bool
	Active       bool
	MaskedKey    string
	BaseURL      string
	DefaultModel string
	InitError    string
}

// ConnectionReport is the detailed outcome of a connection check
type ConnectionReport struct {
	Provider Identity
	Model    string
	OK       bool
	Response string
	Err      error
	Latency  time.Duration
}

// Gateway is the single entry point for text generation. It holds the active
// selection and one transport and catalog per provider.
type Gateway struct {
	cfg      GatewayConfig
	factory  *Factory
	recorder Recorder
	logger   *utils.Logger
	catalogs map[Identity]*Catalog
	listings *cache.LRU[[]ModelDescriptor]

	mu         sync.RWMutex
	selection  Selection
	transports map[Identity]Transport
	initErrors map[Identity]error
}

// snapshot is the state one Generate call works with
type snapshot struct {
	selection    Selection
	active       Transport
	activeErr    error
	primary      Transport
	primaryModel string
}

// NewGateway builds a gateway and initializes every provider that has
// credentials. It never fails; unconfigured providers are reported by Status.
func NewGateway(cfg GatewayConfig, opts ...Option) *Gateway {
	if cfg.Credentials == nil {
		cfg.Credentials = CredentialSet{}
	}
	if !cfg.DefaultProvider.Valid() {
		cfg.DefaultProvider = Primary
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = DefaultCatalogTTL
	}
	if cfg.CatalogCacheSize <= 0 {
		cfg.CatalogCacheSize = DefaultCatalogCacheSize
	}

	g := &Gateway{
		cfg:        cfg,
		catalogs:   make(map[Identity]*Catalog),
		transports: make(map[Identity]Transport),
		initErrors: make(map[Identity]error),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.factory == nil {
		g.factory = NewDefaultFactory()
	}
	if g.logger == nil {
		g.logger = utils.NewLogger("gateway")
	}
	if g.cfg.Transport.Logger == nil {
		g.cfg.Transport.Logger = g.logger
	}

	g.listings = cache.NewLRU[[]ModelDescriptor](cfg.CatalogCacheSize, cfg.CatalogTTL)
	catalogLogger := utils.NewLogger("catalog")
	for _, id := range Identities() {
		t, err := g.createTransport(id)
		if err != nil {
			g.initErrors[id] = err
			if errors.Is(err, ErrNotConfigured) {
				g.logger.Debug("Provider not configured", "provider", id, "reason", err)
			} else {
				g.logger.Warn("Provider setup failed", "provider", id, "error", err)
			}
		} else {
			g.transports[id] = t
		}
		g.catalogs[id] = NewCatalog(id, t, g.listings, catalogLogger)
	}

	g.selection = Selection{Provider: cfg.DefaultProvider, Model: g.DefaultModel(cfg.DefaultProvider)}
	g.logger.Info("Gateway initialized", "provider", g.selection.Provider, "model", g.selection.Model,
		"credentials", cfg.Credentials.Configured(), "ready", len(g.transports))
	return g
}

// DefaultModel returns the configured default model for id, or the built-in one
func (g *Gateway) DefaultModel(id Identity) string {
	if m := g.cfg.DefaultModels[id]; m != "" {
		return m
	}
	return id.DefaultModel()
}

// Configure switches the active selection. An empty model selects the
// provider default. The provider's transport is rebuilt; when that fails the
// selection still changes and a *ConfigurationError is returned as a report.
func (g *Gateway) Configure(provider Identity, model string) error {
	if !provider.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = g.DefaultModel(provider)
	}

	t, err := g.createTransport(provider)

	g.mu.Lock()
	old := g.transports[provider]
	g.selection = Selection{Provider: provider, Model: model}
	if t != nil {
		g.transports[provider] = t
	} else {
		delete(g.transports, provider)
	}
	g.initErrors[provider] = err
	g.mu.Unlock()

	g.catalogs[provider].SetTransport(t)
	if n := g.listings.CleanupExpired(); n > 0 {
		g.logger.Debug("Pruned expired model listings", "count", n)
	}

	// In-flight calls may still hold old; Close only drops idle connections.
	if old != nil {
		if cerr := old.Close(); cerr != nil {
			g.logger.Warn("Failed to close previous transport", "provider", provider, "error", cerr)
		}
	}

	if err != nil {
		g.logger.Warn("Provider selected but not usable", "provider", provider, "model", model, "error", err)
		return err
	}
	g.logger.Info("Provider configured", "provider", provider, "model", model)
	return nil
}

// ConfigureByName parses the provider name then calls Configure. Unknown
// names leave the selection unchanged.
func (g *Gateway) ConfigureByName(name, model string) error {
	id, err := ParseIdentity(name)
	if err != nil {
		return err
	}
	return g.Configure(id, model)
}

// Selection returns the active selection
func (g *Gateway) Selection() Selection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selection
}

// Generate runs one prompt against the active provider, falling back once to
// the primary provider when a secondary fails. It never panics and never
// returns an error; failures are described by the Result.
func (g *Gateway) Generate(ctx context.Context, prompt string) Result {
	start := time.Now()
	snap := g.snapshot()

	result := g.generate(ctx, snap, prompt)
	result.RequestID = uuid.New()
	result.Latency = time.Since(start)

	g.record(ctx, GenerationEvent{
		Prompt:    prompt,
		Selection: snap.selection,
		Result:    result,
		CreatedAt: start.UTC(),
	})
	return result
}

// GenerateContent is Generate rendered to the display string
func (g *Gateway) GenerateContent(ctx context.Context, prompt string) string {
	return g.Generate(ctx, prompt).Render()
}

func (g *Gateway) snapshot() snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := snapshot{
		selection: g.selection,
		active:    g.transports[g.selection.Provider],
		activeErr: g.initErrors[g.selection.Provider],
	}
	if g.cfg.Credentials.Has(Primary) {
		snap.primary = g.transports[Primary]
	}
	snap.primaryModel = g.DefaultModel(Primary)
	return snap
}

func (g *Gateway) generate(ctx context.Context, snap snapshot, prompt string) Result {
	active := snap.selection.Provider

	if snap.active == nil {
		return Result{
			Status:         StatusFailed,
			Provider:       active,
			Model:          snap.selection.Model,
			FailedProvider: active,
			Err:            g.configurationError(active, snap.activeErr),
		}
	}

	completion, err := g.send(ctx, snap.active, snap.selection.Model, prompt)
	if err == nil {
		return completed(StatusOK, active, snap.selection.Model, completion)
	}

	if active == Primary || snap.primary == nil || ctx.Err() != nil {
		g.logger.Warn("Generation failed", "provider", active, "model", snap.selection.Model, "error", err)
		return Result{
			Status:         StatusFailed,
			Provider:       active,
			Model:          snap.selection.Model,
			FailedProvider: active,
			Err:            err,
		}
	}

	g.logger.Warn("Generation failed, falling back to primary", "provider", active, "primary", Primary, "error", err)

	completion, fbErr := g.send(ctx, snap.primary, snap.primaryModel, prompt)
	if fbErr == nil {
		result := completed(StatusFallback, Primary, snap.primaryModel, completion)
		result.FailedProvider = active
		return result
	}

	g.logger.Error("Fallback to primary failed", "provider", active, "primary", Primary, "error", fbErr)
	return Result{
		Status:         StatusFailed,
		Provider:       active,
		Model:          snap.selection.Model,
		FailedProvider: active,
		Err: &FallbackExhaustedError{
			Failed:   active,
			Primary:  Primary,
			Original: err,
			Fallback: fbErr,
		},
	}
}

func completed(status Status, provider Identity, model string, c *Completion) Result {
	r := Result{
		Status:       status,
		Text:         c.Text,
		Provider:     provider,
		Model:        c.Model,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
	}
	if r.Model == "" {
		r.Model = model
	}
	return r
}

// send performs one bounded transport call. Panics and empty replies are
// converted to *TransportError.
func (g *Gateway) send(ctx context.Context, t Transport, model, prompt string) (completion *Completion, err error) {
	id := t.Identity()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Transport panicked", "provider", id, "panic", r)
			completion, err = nil, &TransportError{Provider: id, Op: OpGenerate, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	completion, err = t.Send(ctx, model, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				return nil, &TransportError{Provider: id, Op: OpGenerate, Message: fmt.Sprintf("timed out after %s", g.cfg.RequestTimeout), Cause: err}
			}
		}
		return nil, asTransportError(id, OpGenerate, err)
	}
	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		return nil, &TransportError{Provider: id, Op: OpGenerate, Message: "empty response"}
	}
	return completion, nil
}

func (g *Gateway) configurationError(id Identity, cause error) error {
	var ce *ConfigurationError
	if errors.As(cause, &ce) {
		return ce
	}
	if cause != nil {
		return &ConfigurationError{Provider: id, Reason: "setup failed: " + cause.Error(), Cause: cause}
	}
	return &ConfigurationError{Provider: id, Reason: "transport not initialized"}
}

func (g *Gateway) record(ctx context.Context, event GenerationEvent) {
	if g.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Recorder panicked", "panic", r)
		}
	}()
	g.recorder.Record(ctx, event)
}

// ListAvailableModels returns the active provider's generation models
func (g *Gateway) ListAvailableModels(ctx context.Context) []ModelDescriptor {
	return g.catalogs[g.Selection().Provider].Models(ctx)
}

// ListAvailableModelIDs returns just the model identifiers
func (g *Gateway) ListAvailableModelIDs(ctx context.Context) []string {
	models := g.ListAvailableModels(ctx)
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids
}

// CheckConnection reports whether the active provider answers a minimal prompt
func (g *Gateway) CheckConnection(ctx context.Context) bool {
	return g.CheckConnectionDetail(ctx).OK
}

// CheckConnectionDetail sends ConnectionCheckPrompt to the active provider
// only; fallback is never used here.
func (g *Gateway) CheckConnectionDetail(ctx context.Context) ConnectionReport {
	start := time.Now()
	snap := g.snapshot()
	report := ConnectionReport{Provider: snap.selection.Provider, Model: snap.selection.Model}

	if snap.active == nil {
		report.Err = g.configurationError(snap.selection.Provider, snap.activeErr)
		report.Latency = time.Since(start)
		return report
	}

	completion, err := g.send(ctx, snap.active, snap.selection.Model, ConnectionCheckPrompt)
	report.Latency = time.Since(start)
	if err != nil {
		report.Err = err
		g.logger.Warn("Connection check failed", "provider", report.Provider, "error", err)
		return report
	}

	report.Response = completion.Text
	report.OK = IsAcknowledgement(completion.Text)
	g.logger.Info("Connection check finished", "provider", report.Provider, "ok", report.OK, "latency", report.Latency)
	return report
}

// IsAcknowledgement applies the lenient connection check rule. The token
// must appear as a whole word, in any case.
func IsAcknowledgement(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	words := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if strings.EqualFold(w, ConnectionCheckToken) {
			return true
		}
	}
	return utf8.RuneCountInString(trimmed) < ConnectionCheckMaxLen
}

// Status describes every known provider
func (g *Gateway) Status() []ProviderStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(Identities()))
	for _, id := range Identities() {
		st := ProviderStatus{
			Provider:     id,
			DisplayName:  id.DisplayName(),
			Configured:   g.transports[id] != nil,
			Active:       g.selection.Provider == id,
			MaskedKey:    g.cfg.Credentials.Masked(id),
			BaseURL:      g.cfg.Credentials.Get(id).BaseURL,
			DefaultModel: g.DefaultModel(id),
		}
		if err := g.initErrors[id]; err != nil {
			st.InitError = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Close releases every transport
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for id, t := range g.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(g.transports, id)
	}
	return errors.Join(errs...)
}

func (g *Gateway) createTransport(id Identity) (Transport, error) {
	if !g.cfg.Credentials.Has(id) {
		return nil, &ConfigurationError{Provider: id, Reason: "missing API key"}
	}
	return g.factory.Create(id, g.cfg.Credentials.Get(id), g.cfg.Transport)
}
