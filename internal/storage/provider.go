package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/edvin/hostbackup/internal/model"
)

// Provider resolves the local and offsite storages of a project. Circuit
// breaker state is kept per offsite destination for the life of the Provider,
// so consecutive runs against a dead remote fail fast.
type Provider struct {
	logger   zerolog.Logger
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewProvider creates a Provider.
func NewProvider(logger zerolog.Logger, settings BreakerSettings) *Provider {
	return &Provider{
		logger:   logger.With().Str("component", "storage").Logger(),
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Local returns the local artifact storage of the project.
func (p *Provider) Local(project model.Project) (Storage, error) {
	if project.LocalRoot == "" {
		return nil, fmt.Errorf("project %s has no local storage root", project.ID)
	}
	return NewLocal(project.LocalRoot), nil
}

// Offsite returns the offsite storage of the project. The remote connection
// is established on first use, inside the circuit breaker, so dial failures
// count toward tripping it.
func (p *Provider) Offsite(_ context.Context, project model.Project) (Storage, error) {
	desc := project.Offsite
	var open func(context.Context) (Storage, error)
	var name string

	switch desc.Kind {
	case model.StorageKindSSH:
		name = "ssh://" + desc.User + "@" + desc.Host + ":" + strconv.Itoa(portOr(desc.Port, 22)) + "/" + desc.Path
		open = func(ctx context.Context) (Storage, error) { return DialSSH(ctx, desc) }
	case model.StorageKindS3:
		name = "s3://" + desc.Endpoint + "/" + desc.Bucket + "/" + desc.Path
		open = func(context.Context) (Storage, error) { return NewS3(desc), nil }
	default:
		return nil, fmt.Errorf("project %s: unsupported offsite storage kind %q", project.ID, desc.Kind)
	}

	return &Breaker{next: &lazy{open: open, name: name}, cb: p.breaker(name)}, nil
}

func (p *Provider) breaker(name string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[name]
	if !ok {
		cb = newCircuitBreaker(name, p.settings, p.logger)
		p.breakers[name] = cb
	}
	return cb
}

func portOr(port, fallback int) int {
	if port == 0 {
		return fallback
	}
	return port
}

// lazy defers opening a storage until the first call that needs it.
type lazy struct {
	open func(context.Context) (Storage, error)
	name string

	mu sync.Mutex
	s  Storage
}

func (l *lazy) get(ctx context.Context) (Storage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s != nil {
		return l.s, nil
	}
	s, err := l.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", l.name, err)
	}
	l.s = s
	return s, nil
}

func (l *lazy) Write(ctx context.Context, key string, data []byte) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Write(ctx, key, data)
}

func (l *lazy) Read(ctx context.Context, key string) ([]byte, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, key)
}

func (l *lazy) Delete(ctx context.Context, key string) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, key)
}

func (l *lazy) Exists(ctx context.Context, key string) (bool, error) {
	s, err := l.get(ctx)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, key)
}

func (l *lazy) Location(key string) string {
	l.mu.Lock()
	s := l.s
	l.mu.Unlock()
	if s != nil {
		return s.Location(key)
	}
	return l.name + "/" + key
}

func (l *lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s == nil {
		return nil
	}
	err := l.s.Close()
	l.s = nil
	return err
}
