package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shootingstick/ss"
	"github.com/shootingstick/ss/value"
)

func TestCollectViewTargets(t *testing.T) {
	catalog := ss.NewCatalog(ss.CatalogOptions{
		DataDir: t.TempDir(),
		Options: ss.Options{
			InMemory: true,
			ViewRoot: t.TempDir(),
			Indexers: map[string]ss.Indexer{
				"app/a": ss.IndexerFunc(func(value.Object, func(key, val any)) error { return nil }),
				"app/b": ss.IndexerFunc(func(value.Object, func(key, val any)) error { return nil }),
			},
		},
	})
	t.Cleanup(func() { catalog.Close() })

	targets, err := collectViewTargets(catalog, []string{"one", "two"})
	require.NoError(t, err)
	var keys []string
	for _, tg := range targets {
		keys = append(keys, tg.name+":"+tg.key())
	}
	assert.Equal(t, []string{"one:app/a", "one:app/b", "two:app/a", "two:app/b"}, keys)

	_, err = collectViewTargets(catalog, []string{"one", "Bad"})
	assert.ErrorIs(t, err, ss.ErrInvalidName)
}
