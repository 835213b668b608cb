package ss

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
)

var dbNameRe = regexp.MustCompile(`^[a-z][a-z0-9_$()+-]*$`)

// ValidDBName reports whether name is an acceptable database name, using the
// CouchDB rules.
func ValidDBName(name string) bool {
	return dbNameRe.MatchString(name)
}

type CatalogOptions struct {
	// DataDir holds one directory per database.
	DataDir string
	// Options apply to every database opened through the catalog.
	Options Options
}

// Catalog opens databases by name and keeps them open until Close. Build one
// at startup and hand it to whatever serves requests.
type Catalog struct {
	opt CatalogOptions

	mu     sync.Mutex
	dbs    map[string]*DB
	closed bool
}

func NewCatalog(opt CatalogOptions) *Catalog {
	opt.Options.applyDefaults()
	return &Catalog{
		opt: opt,
		dbs: make(map[string]*DB),
	}
}

// Database returns the database called name, opening (and creating) it on
// first use.
func (c *Catalog) Database(name string) (*DB, error) {
	if !ValidDBName(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if db := c.dbs[name]; db != nil {
		return db, nil
	}
	db, err := Open(filepath.Join(c.opt.DataDir, name), c.opt.Options)
	if err != nil {
		return nil, err
	}
	c.dbs[name] = db
	return db, nil
}

// Exists reports whether name is open or present on disk.
func (c *Catalog) Exists(name string) bool {
	if !ValidDBName(name) {
		return false
	}
	c.mu.Lock()
	_, open := c.dbs[name]
	c.mu.Unlock()
	if open {
		return true
	}
	_, err := os.Stat(filepath.Join(c.opt.DataDir, name, storeFileName))
	return err == nil
}

// Names lists open databases and databases found in the data directory.
func (c *Catalog) Names() ([]string, error) {
	c.mu.Lock()
	names := make([]string, 0, len(c.dbs))
	for name := range c.dbs {
		names = append(names, name)
	}
	c.mu.Unlock()

	if !c.opt.Options.InMemory {
		entries, err := os.ReadDir(c.opt.DataDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && ValidDBName(e.Name()) {
				if _, err := os.Stat(filepath.Join(c.opt.DataDir, e.Name(), storeFileName)); err == nil {
					names = append(names, e.Name())
				}
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Close closes every open database. Later calls to Database fail with
// ErrClosed.
func (c *Catalog) Close() error {
	c.mu.Lock()
	dbs := c.dbs
	c.dbs = nil
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, db := range dbs {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}
