package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/internal/infrastructure/github"
)

type chatCall struct {
	system   string
	messages []models.ChatMessage
}

type fakeProvider struct {
	name  string
	reply func(messages []models.ChatMessage) (string, error)

	mu    sync.Mutex
	calls []chatCall
}

func newFakeProvider(name string, replies ...string) *fakeProvider {
	p := &fakeProvider{name: name}
	i := 0
	p.reply = func([]models.ChatMessage) (string, error) {
		if i >= len(replies) {
			return "", errors.New("no more replies")
		}
		r := replies[i]
		i++
		return r, nil
	}
	return p
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Chat(_ context.Context, system string, messages []models.ChatMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, chatCall{system: system, messages: append([]models.ChatMessage{}, messages...)})
	return p.reply(messages)
}

func (p *fakeProvider) lastCall() chatCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

type fakeArchive struct {
	mu      sync.Mutex
	saved   []models.ArchivedResponse
	saveErr error
}

func (a *fakeArchive) Save(_ context.Context, provider, response string) (*models.ArchivedResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return nil, a.saveErr
	}
	rec := models.ArchivedResponse{ID: "r", Provider: provider, Response: response}
	a.saved = append(a.saved, rec)
	return &rec, nil
}

func (a *fakeArchive) List(_ context.Context, limit int) ([]models.ArchivedResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ArchivedResponse{}, a.saved...), nil
}

// script describes how a spawned command behaves in fakeEnv.
type script struct {
	output string
	code   int
	// block keeps the process running until its context is cancelled
	block bool
}

type fakeEnv struct {
	ready chan struct{}

	mu        sync.Mutex
	mounts    []services.MountTree
	scripts   map[string]script
	spawned   []string
	listeners []func(int, string)
	closed    bool
}

func newFakeEnv() *fakeEnv {
	env := &fakeEnv{ready: make(chan struct{}), scripts: map[string]script{}}
	close(env.ready)
	return env
}

func (e *fakeEnv) Ready() <-chan struct{} { return e.ready }

func (e *fakeEnv) Mount(_ context.Context, tree services.MountTree) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mounts = append(e.mounts, tree)
	return nil
}

func (e *fakeEnv) Spawn(ctx context.Context, command string, args ...string) (services.Process, error) {
	line := strings.Join(append([]string{command}, args...), " ")
	e.mu.Lock()
	sc, ok := e.scripts[line]
	e.spawned = append(e.spawned, line)
	e.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown command " + line)
	}
	return &fakeProcess{ctx: ctx, sc: sc}, nil
}

func (e *fakeEnv) OnServerReady(fn func(int, string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *fakeEnv) emitServerReady(port int, url string) {
	e.mu.Lock()
	listeners := append([]func(int, string){}, e.listeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(port, url)
	}
}

func (e *fakeEnv) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEnv) lastMount() services.MountTree {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.mounts) == 0 {
		return nil
	}
	return e.mounts[len(e.mounts)-1]
}

func (e *fakeEnv) spawnCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.spawned)
}

func (e *fakeEnv) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeProcess struct {
	ctx context.Context
	sc  script
}

func (p *fakeProcess) Output() io.Reader { return strings.NewReader(p.sc.output) }

func (p *fakeProcess) Wait(ctx context.Context) (int, error) {
	if !p.sc.block {
		return p.sc.code, nil
	}
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.ctx.Done():
		return -1, p.ctx.Err()
	}
}

type fakeEnvFactory struct {
	mu   sync.Mutex
	envs map[string]*fakeEnv
	err  error
}

func (f *fakeEnvFactory) Create(id string) (services.Environment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.envs == nil {
		f.envs = map[string]*fakeEnv{}
	}
	env := newFakeEnv()
	f.envs[id] = env
	return env, nil
}

func (f *fakeEnvFactory) get(id string) *fakeEnv {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.envs[id]
}

type fakeImporter struct {
	repo *github.Repo
	err  error
}

func (f *fakeImporter) ImportRepo(context.Context, string, string) (*github.Repo, error) {
	return f.repo, f.err
}
