package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/cashcore/bioverify/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ── Fake DB ──────────────────────────────────────────────────────────────

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.exists
	return nil
}

type fakeDB struct {
	clean   map[int64]bool
	execs   []string
	failOn  string
	scanErr error
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, strings.TrimSpace(sql))
	if d.failOn != "" && strings.Contains(sql, d.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE schema_migrations") {
		d.clean[args[0].(int64)] = true
	}
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if d.scanErr != nil {
		return fakeRow{err: d.scanErr}
	}
	return fakeRow{exists: d.clean[args[0].(int64)]}
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestFiles_embedded(t *testing.T) {
	files, err := Files(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_user_accounts.up.sql", files[0].Name)
	assert.Equal(t, int64(1), files[0].Version)
}

func TestFiles_orderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.up.sql":    {Data: []byte("SELECT 10")},
		"002_second.up.sql":   {Data: []byte("SELECT 2")},
		"002_second.down.sql": {Data: []byte("SELECT -2")},
		"README.md":           {Data: []byte("docs")},
	}
	files, err := Files(fsys)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, int64(2), files[0].Version)
	assert.Equal(t, int64(10), files[1].Version)

	_, err = Files(fstest.MapFS{"init.up.sql": {Data: []byte("x")}})
	assert.Error(t, err)
}

func TestUp_appliesOnce(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.up.sql": {Data: []byte("CREATE TABLE a ()")},
		"002_b.up.sql": {Data: []byte("CREATE TABLE b ()")},
	}
	db := &fakeDB{clean: map[int64]bool{}}

	n, err := Up(context.Background(), db, fsys, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, db.execs, "CREATE TABLE a ()")

	n, err = Up(context.Background(), db, fsys, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUp_stopsOnFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.up.sql": {Data: []byte("CREATE TABLE a ()")},
		"002_b.up.sql": {Data: []byte("BROKEN")},
		"003_c.up.sql": {Data: []byte("CREATE TABLE c ()")},
	}
	db := &fakeDB{clean: map[int64]bool{}, failOn: "BROKEN"}

	n, err := Up(context.Background(), db, fsys, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply 002_b.up.sql")
	assert.Equal(t, 1, n)
	assert.False(t, db.clean[2])
	assert.NotContains(t, db.execs, "CREATE TABLE c ()")
}
