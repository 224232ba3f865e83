package file

import (
	"github.com/catafolk/catafolk"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores file metadata keyed by the file's checksum, so unchanged
// files are not read again.
type Cache interface {
	Get(checksum string) (md catafolk.Record, ok bool, err error)
	Put(checksum string, md catafolk.Record) error
}

// MemoryCache is a Cache holding the most recently used entries in memory.
type MemoryCache struct {
	entries *lru.Cache
}

// NewMemoryCache returns a MemoryCache holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating lru cache")
	}
	return &MemoryCache{entries: c}, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(checksum string) (catafolk.Record, bool, error) {
	v, ok := c.entries.Get(checksum)
	if !ok {
		return nil, false, nil
	}
	return copyRecord(v.(catafolk.Record)), true, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(checksum string, md catafolk.Record) error {
	c.entries.Add(checksum, copyRecord(md))
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int { return c.entries.Len() }

func copyRecord(rec catafolk.Record) catafolk.Record {
	ret := make(catafolk.Record, len(rec))
	for k, v := range rec {
		ret[k] = v
	}
	return ret
}

// EncodeMetadata serializes md for persistent caches.
func EncodeMetadata(md catafolk.Record) ([]byte, error) {
	m := make(map[string]interface{}, len(md))
	for k, v := range md {
		m[k] = catafolk.Interface(v)
	}
	data, err := msgpack.Marshal(m)
	return data, errors.Wrap(err, "encoding metadata")
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(data []byte) (catafolk.Record, error) {
	var m map[string]interface{}
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decoding metadata")
	}
	md := make(catafolk.Record, len(m))
	for k, x := range m {
		v, err := catafolk.ValueOf(x)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding metadata key %s", k)
		}
		md[k] = v
	}
	return md, nil
}
