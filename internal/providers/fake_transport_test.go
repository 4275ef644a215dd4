package providers

import (
	"context"
	"errors"
	"sync"
)

type sendCall struct {
	model  string
	prompt string
}

// fakeTransport is a scriptable Transport for gateway and catalog tests.
type fakeTransport struct {
	id Identity

	mu        sync.Mutex
	reply     string
	err       error
	panicWith any
	block     bool
	models    []ModelDescriptor
	listErr   error
	calls     []sendCall
	listCalls int
	closed    bool
}

func (f *fakeTransport) Identity() Identity { return f.id }

func (f *fakeTransport) Send(ctx context.Context, model, prompt string) (*Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{model: model, prompt: prompt})
	reply, err, panicWith, block := f.reply, f.err, f.panicWith, f.block
	f.mu.Unlock()

	if panicWith != nil {
		panic(panicWith)
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &Completion{Text: reply, Model: model, InputTokens: 3, OutputTokens: 5}, nil
}

func (f *fakeTransport) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.models, f.listErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) set(reply string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply, f.err = reply, err
}

func (f *fakeTransport) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

func (f *fakeTransport) listed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// fakeBackends hands out one fakeTransport per provider through a Factory.
type fakeBackends struct {
	mu         sync.Mutex
	transports map[Identity]*fakeTransport
	created    map[Identity]int
}

func newFakeBackends() *fakeBackends {
	b := &fakeBackends{
		transports: make(map[Identity]*fakeTransport),
		created:    make(map[Identity]int),
	}
	for _, id := range Identities() {
		b.transports[id] = &fakeTransport{id: id, reply: "hello from " + string(id)}
	}
	return b
}

func (b *fakeBackends) factory() *Factory {
	f := NewFactory()
	for _, id := range Identities() {
		f.Register(id, func(id Identity, creds Credentials, opts Options) (Transport, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.created[id]++
			return b.transports[id], nil
		})
	}
	return f
}

func (b *fakeBackends) get(id Identity) *fakeTransport {
	return b.transports[id]
}

func allCredentials() CredentialSet {
	return CredentialSet{
		Gemini:     {APIKey: "gemini-key-123456"},
		OpenRouter: {APIKey: "openrouter-key-123456"},
		Nvidia:     {APIKey: "nvidia-key-123456", BaseURL: "https://nim.example.test/v1"},
	}
}

var errUpstream = errors.New("quota exceeded for this key")
