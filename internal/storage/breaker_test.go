package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hostbackup/internal/model"
)

// flakyStorage fails every Write with err and counts calls.
type flakyStorage struct {
	*Local
	err    error
	writes int
}

func (f *flakyStorage) Write(ctx context.Context, key string, data []byte) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	return f.Local.Write(ctx, key, data)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyStorage{Local: NewLocal(t.TempDir()), err: errors.New("connection reset")}
	b := NewBreaker("test", next, BreakerSettings{MaxFailures: 2, Timeout: time.Hour}, zerolog.Nop())
	ctx := context.Background()

	assert.Error(t, b.Write(ctx, "p/a", []byte("x")))
	assert.Error(t, b.Write(ctx, "p/a", []byte("x")))
	assert.True(t, b.Open())

	err := b.Write(ctx, "p/a", []byte("x"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.writes, "open circuit must not reach the destination")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	b := NewBreaker("test", NewLocal(t.TempDir()), BreakerSettings{MaxFailures: 1, Timeout: time.Hour}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := b.Read(context.Background(), "p/missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.False(t, b.Open())
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker("test", NewLocal(t.TempDir()), DefaultBreakerSettings, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "p/a", []byte("payload")))
	ok, err := b.Exists(ctx, "p/a")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := b.Read(ctx, "p/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, b.Delete(ctx, "p/a"))
}

func TestProvider_SharesBreakerPerDestination(t *testing.T) {
	p := NewProvider(zerolog.Nop(), DefaultBreakerSettings)
	project := model.Project{
		ID: "proj-1",
		Offsite: model.StorageDescriptor{
			Kind:   model.StorageKindS3,
			Bucket: "backups",
		},
	}

	s1, err := p.Offsite(context.Background(), project)
	require.NoError(t, err)
	s2, err := p.Offsite(context.Background(), project)
	require.NoError(t, err)

	assert.Same(t, s1.(*Breaker).cb, s2.(*Breaker).cb)
}

func TestProvider_UnsupportedKind(t *testing.T) {
	p := NewProvider(zerolog.Nop(), DefaultBreakerSettings)
	_, err := p.Offsite(context.Background(), model.Project{ID: "proj-1", Offsite: model.StorageDescriptor{Kind: "ftp"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported offsite storage kind")
}

func TestProvider_LocalRequiresRoot(t *testing.T) {
	p := NewProvider(zerolog.Nop(), DefaultBreakerSettings)
	_, err := p.Local(model.Project{ID: "proj-1"})
	assert.Error(t, err)
}
