package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/stratofs/lockmgr/cache/inmem"
	"github.com/stratofs/lockmgr/lock"
	"github.com/stratofs/lockmgr/lock/sqldb"
)

// fullProvider builds a provider backed by a real sqlite lock database
// so the database kind can be resolved end to end.
func fullProvider(t *testing.T) *StaticProvider {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, sqldb.Setup(context.Background(), db, sqldb.DefaultTable))

	c := inmem.New()
	t.Cleanup(c.Stop)

	return &StaticProvider{
		SQL:   db,
		Cache: c,
		Log:   logr.Discard(),
	}
}

func TestResolveDatabaseKind(t *testing.T) {
	r, err := New("site1", []Spec{
		{Name: "default", Kind: KindDatabase, Settings: map[string]any{
			"ttl": "30s",
		}},
	}, fullProvider(t))
	require.NoError(t, err)

	ctx := context.Background()

	m, err := r.Resolve(ctx, "default")
	require.NoError(t, err)

	require.NoError(t, m.Lock(ctx, lock.TypeExclusive, "file/a"))
	require.NoError(t, m.Unlock(ctx, lock.TypeExclusive, "file/a"))
}

func TestResolveDatabaseKindWithoutDB(t *testing.T) {
	c := inmem.New()
	t.Cleanup(c.Stop)
	provider := &StaticProvider{Cache: c, Log: logr.Discard()}

	r, err := New("site1", []Spec{{Name: "default", Kind: KindDatabase}}, provider)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "default")
	require.Error(t, err, "missing database must surface as a construction error")
}

func TestResolveFilesystemKind(t *testing.T) {
	r, err := New("site1", []Spec{
		{Name: FallbackName, Kind: KindFilesystem, Settings: map[string]any{
			"lockDirectory": t.TempDir(),
		}},
	}, fullProvider(t))
	require.NoError(t, err)

	ctx := context.Background()

	m, err := r.Any(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Lock(ctx, lock.TypeShared, "file/a", "file/b"))
	require.NoError(t, m.Unlock(ctx, lock.TypeShared, "file/a", "file/b"))
}

func TestResolveFilesystemKindMissingDirectory(t *testing.T) {
	r, err := New("site1", []Spec{{Name: FallbackName, Kind: KindFilesystem}}, fullProvider(t))
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), FallbackName)
	require.Error(t, err)

	// The failed construction must not be cached.
	_, err = r.Resolve(context.Background(), FallbackName)
	require.Error(t, err)
}

func TestResolveQuorumKind(t *testing.T) {
	srv := miniredis.RunT(t)

	r, err := New("site1", []Spec{
		{Name: "default", Kind: KindQuorum, Settings: map[string]any{
			"servers": []any{srv.Addr()},
			"ttl":     30,
		}},
	}, fullProvider(t))
	require.NoError(t, err)

	ctx := context.Background()

	m, err := r.Resolve(ctx, "default")
	require.NoError(t, err)
	require.NoError(t, m.Lock(ctx, lock.TypeExclusive, "file/a"))
	require.NoError(t, m.Unlock(ctx, lock.TypeExclusive, "file/a"))
}

func TestResolveNopKind(t *testing.T) {
	r, err := New("site1", []Spec{{Name: "default", Kind: KindNop}}, fullProvider(t))
	require.NoError(t, err)

	m, err := r.Resolve(context.Background(), "default")
	require.NoError(t, err)
	assert.IsType(t, &lock.NopManager{}, m)
}

func TestSettingDuration(t *testing.T) {
	d, err := settingDuration(map[string]any{"ttl": "45s"}, "ttl")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = settingDuration(map[string]any{"ttl": 30}, "ttl")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = settingDuration(map[string]any{}, "ttl")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = settingDuration(map[string]any{"ttl": "nonsense"}, "ttl")
	assert.Error(t, err)

	_, err = settingDuration(map[string]any{"ttl": 1.5}, "ttl")
	assert.Error(t, err)
}
