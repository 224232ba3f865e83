// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package leveldb

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/catafolk/catafolk"
	"github.com/catafolk/catafolk/file"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ file.Cache = &Namespace{}

// Cache keeps file metadata in leveldb databases below a directory, one
// database per namespace.
type Cache struct {
	lock    sync.RWMutex
	dirname string
	spaces  map[string]*Namespace
}

// Namespace is the part of a Cache belonging to one dataset. It
// implements file.Cache.
type Namespace struct {
	name string
	db   *leveldb.DB
}

// NewCache opens (creating if needed) the cache in dirname along with the
// given namespaces.
func NewCache(dirname string, namespaces ...string) (c *Cache, err error) {
	if err := os.MkdirAll(dirname, 0700); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	c = &Cache{
		dirname: dirname,
		spaces:  make(map[string]*Namespace),
	}
	for _, name := range namespaces {
		if _, err := c.Namespace(name); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Namespace returns the namespace name, opening its database on first use.
func (c *Cache) Namespace(name string) (*Namespace, error) {
	c.lock.RLock()
	if ns, ok := c.spaces[name]; ok {
		c.lock.RUnlock()
		return ns, nil
	}
	c.lock.RUnlock()
	c.lock.Lock()
	defer c.lock.Unlock()
	if ns, ok := c.spaces[name]; ok {
		return ns, nil
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, errors.Errorf("invalid namespace '%s'", name)
	}
	path := filepath.Join(c.dirname, name)
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", path)
	}
	ns := &Namespace{name: name, db: db}
	c.spaces[name] = ns
	return ns, nil
}

// Close closes every open namespace.
func (c *Cache) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	var errs *multierror.Error
	for name, ns := range c.spaces {
		if err := ns.db.Close(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "closing namespace %s", name))
		}
	}
	c.spaces = make(map[string]*Namespace)
	return errs.ErrorOrNil()
}

// Get implements file.Cache.
func (ns *Namespace) Get(checksum string) (catafolk.Record, bool, error) {
	data, err := ns.db.Get([]byte(checksum), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "fetching %s from %s", checksum, ns.name)
	}
	md, err := file.DecodeMetadata(data)
	if err != nil {
		return nil, false, err
	}
	return md, true, nil
}

// Put implements file.Cache.
func (ns *Namespace) Put(checksum string, md catafolk.Record) error {
	data, err := file.EncodeMetadata(md)
	if err != nil {
		return err
	}
	return errors.Wrapf(ns.db.Put([]byte(checksum), data, nil), "storing %s in %s", checksum, ns.name)
}

// Len counts the entries of the namespace.
func (ns *Namespace) Len() (int, error) {
	iter := ns.db.NewIterator(nil, nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, errors.Wrap(iter.Error(), "iterating")
}
