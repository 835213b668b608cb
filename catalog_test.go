package ss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestValidDBName(t *testing.T) {
	for _, name := range []string{"a", "db1", "my_db", "a$b", "x(1)+y-z"} {
		assert.True(t, ValidDBName(name), name)
	}
	for _, name := range []string{"", "1db", "_users", "Upper", "a/b", "a.b", "a b"} {
		assert.False(t, ValidDBName(name), name)
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(CatalogOptions{DataDir: dir, Options: Options{Logger: zaptest.NewLogger(t), IsTesting: true}})
	defer c.Close()

	assert.False(t, c.Exists("books"))
	db, err := c.Database("books")
	require.NoError(t, err)
	assert.Equal(t, "books", db.Name())
	assert.True(t, c.Exists("books"))

	again, err := c.Database("books")
	require.NoError(t, err)
	assert.Same(t, db, again)

	_, err = c.Database("Bad Name")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.False(t, c.Exists("Bad Name"))

	_, err = c.Database("music")
	require.NoError(t, err)
	names, err := c.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "music"}, names)
}

func TestCatalog_FindsDatabasesOnDisk(t *testing.T) {
	if testing.Short() {
		t.Skip("needs the on-disk backend")
	}
	dir := t.TempDir()
	opt := CatalogOptions{DataDir: dir, Options: Options{IsTesting: true}}

	c := NewCatalog(opt)
	db, err := c.Database("books")
	require.NoError(t, err)
	require.NoError(t, db.Insert(context.Background(), []Document{mkdoc("a")}))
	require.NoError(t, c.Close())

	_, err = c.Database("books")
	assert.ErrorIs(t, err, ErrClosed)

	c = NewCatalog(opt)
	defer c.Close()
	assert.True(t, c.Exists("books"))
	names, err := c.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"books"}, names)

	db, err = c.Database("books")
	require.NoError(t, err)
	_, err = db.Get(context.Background(), "a")
	assert.NoError(t, err)
}

func TestCatalog_InMemory(t *testing.T) {
	c := NewCatalog(CatalogOptions{DataDir: t.TempDir(), Options: Options{InMemory: true}})
	defer c.Close()

	_, err := c.Database("scratch")
	require.NoError(t, err)
	names, err := c.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch"}, names)
}
