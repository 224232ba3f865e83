package boltdb

import (
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/file"
	"github.com/pkg/errors"
)

var metadataBucket = []byte("metadata")

// Cache keeps file metadata in a single bolt file with one bucket per
// namespace.
type Cache struct {
	Db     *bolt.DB
	nmu    sync.RWMutex
	spaces map[string]*Namespace
}

// Namespace is one bucket of a Cache. It implements file.Cache.
type Namespace struct {
	cache *Cache
	name  []byte
}

var _ file.Cache = &Namespace{}

// Close syncs and closes the database.
func (c *Cache) Close() error {
	err := c.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return c.Db.Close()
}

// NewCache opens (creating if needed) the bolt file filename along with the
// given namespaces.
func NewCache(filename string, namespaces ...string) (c *Cache, err error) {
	c = &Cache{
		spaces: make(map[string]*Namespace),
	}
	c.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = c.Db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(metadataBucket)
		if err != nil {
			return errors.Wrap(err, "creating metadata bucket")
		}
		for _, name := range namespaces {
			if err := c.addNamespace(mb, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return c, nil
}

func (c *Cache) addNamespace(mb *bolt.Bucket, name string) error {
	if _, err := mb.CreateBucketIfNotExists([]byte(name)); err != nil {
		return errors.Wrap(err, "adding "+name+" to metadata bucket")
	}
	c.nmu.Lock()
	c.spaces[name] = &Namespace{cache: c, name: []byte(name)}
	c.nmu.Unlock()
	return nil
}

// Namespace returns the namespace name, creating its bucket on first use.
func (c *Cache) Namespace(name string) (*Namespace, error) {
	c.nmu.RLock()
	ns, ok := c.spaces[name]
	c.nmu.RUnlock()
	if ok {
		return ns, nil
	}
	err := c.Db.Update(func(tx *bolt.Tx) error {
		return c.addNamespace(tx.Bucket(metadataBucket), name)
	})
	if err != nil {
		return nil, errors.Wrap(err, "adding namespace")
	}
	c.nmu.RLock()
	defer c.nmu.RUnlock()
	return c.spaces[name], nil
}

// Get implements file.Cache.
func (ns *Namespace) Get(checksum string) (md catafolk.Record, ok bool, err error) {
	err = ns.cache.Db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metadataBucket).Bucket(ns.name).Get([]byte(checksum))
		if data == nil {
			return nil
		}
		ok = true
		md, err = file.DecodeMetadata(data)
		return err
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "fetching %s from %s", checksum, ns.name)
	}
	return md, ok, nil
}

// Put implements file.Cache.
func (ns *Namespace) Put(checksum string, md catafolk.Record) error {
	data, err := file.EncodeMetadata(md)
	if err != nil {
		return err
	}
	err = ns.cache.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metadataBucket).Bucket(ns.name).Put([]byte(checksum), data)
	})
	return errors.Wrapf(err, "storing %s in %s", checksum, ns.name)
}

// Len counts the entries of the namespace.
func (ns *Namespace) Len() (n int, err error) {
	err = ns.cache.Db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(metadataBucket).Bucket(ns.name).Stats().KeyN
		return nil
	})
	return n, err
}
