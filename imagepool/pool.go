// Package imagepool provides a bounded LRU cache of decoded image resources
// keyed by source identifier (URL or data URI). Eviction is strictly
// oldest-first and runs after every successful insert until both the entry
// count and the estimated byte total are within bounds.
package imagepool

import (
	"container/list"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxCount bounds the number of cached resources.
	DefaultMaxCount = 50
	// DefaultMaxBytes bounds the estimated decoded size of the cache.
	DefaultMaxBytes = 200 << 20 // 200 MiB
)

type (
	// Resource is a decoded image held by the pool.
	Resource struct {
		Key    string
		Image  image.Image
		Width  int
		Height int
	}

	// Loader fetches and decodes the resource for a key. A failed load is
	// returned to the caller and never cached; cancellation of ctx must abort
	// the load.
	Loader func(ctx context.Context, key string) (*Resource, error)

	// Options configures a Pool. Zero values fall back to defaults; Loader is
	// required.
	Options struct {
		MaxCount int
		MaxBytes int64
		Loader   Loader
	}

	// Stats reports cache occupancy and hit/miss counters accumulated since
	// construction or the last Clear.
	Stats struct {
		Count      int    `json:"count"`
		TotalBytes int64  `json:"totalBytes"`
		Hits       uint64 `json:"hits"`
		Misses     uint64 `json:"misses"`
	}

	entry struct {
		resource     *Resource
		key          string
		sizeBytes    int64
		lastAccessed time.Time
	}

	// Pool is a memory-bounded LRU image cache. It is an injected instance
	// owned by the session, not process-global state; each canvas session may
	// carry its own.
	Pool struct {
		mu         sync.Mutex
		order      *list.List // front = least recently used
		entries    map[string]*list.Element
		totalBytes int64
		hits       uint64
		misses     uint64

		maxCount int
		maxBytes int64
		loader   Loader
		group    singleflight.Group
	}
)

// New creates a Pool from opts.
func New(opts Options) (*Pool, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("imagepool: a Loader is required")
	}
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Pool{
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		maxCount: maxCount,
		maxBytes: maxBytes,
		loader:   opts.Loader,
	}, nil
}

// Get returns the resource for key. A cached key is a hit: its recency is
// refreshed and the resource returned without touching the loader. A miss
// loads the resource, caches it on success and then evicts until bounds
// hold. Concurrent misses for the same key share a single load; every caller
// still accounts its own miss.
func (p *Pool) Get(ctx context.Context, key string) (*Resource, error) {
	p.mu.Lock()
	if el, ok := p.entries[key]; ok {
		p.hits++
		ent := el.Value.(*entry)
		ent.lastAccessed = time.Now()
		p.order.MoveToBack(el)
		res := ent.resource
		p.mu.Unlock()
		return res, nil
	}
	p.misses++
	p.mu.Unlock()

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		res, err := p.loader(ctx, key)
		if err != nil {
			return nil, err
		}
		p.insert(key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resource), nil
}

// Has reports whether key is currently cached, without touching recency or
// counters.
func (p *Pool) Has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[key]
	return ok
}

// Remove drops key from the cache if present.
func (p *Pool) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.entries[key]; ok {
		p.evictElement(el)
	}
}

// Clear empties the cache and resets the hit/miss counters.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order.Init()
	p.entries = make(map[string]*list.Element)
	p.totalBytes = 0
	p.hits = 0
	p.misses = 0
}

// Stats returns current occupancy and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Count:      p.order.Len(),
		TotalBytes: p.totalBytes,
		Hits:       p.hits,
		Misses:     p.misses,
	}
}

// sizeEstimate approximates decoded memory as uncompressed RGBA. The real
// decoded footprint depends on the image model; this deliberately errs
// toward over-counting.
func sizeEstimate(res *Resource) int64 {
	return int64(res.Width) * int64(res.Height) * 4
}

func (p *Pool) insert(key string, res *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A racing insert for the same key may have won; refresh it instead of
	// double-counting bytes.
	if el, ok := p.entries[key]; ok {
		el.Value.(*entry).lastAccessed = time.Now()
		p.order.MoveToBack(el)
		return
	}

	size := sizeEstimate(res)
	el := p.order.PushBack(&entry{
		resource:     res,
		key:          key,
		sizeBytes:    size,
		lastAccessed: time.Now(),
	})
	p.entries[key] = el
	p.totalBytes += size

	for (p.order.Len() > p.maxCount || p.totalBytes > p.maxBytes) && p.order.Len() > 0 {
		oldest := p.order.Front()
		evicted := oldest.Value.(*entry)
		p.evictElement(oldest)
		logrus.WithFields(logrus.Fields{
			"key":        evicted.key,
			"size_bytes": evicted.sizeBytes,
		}).Debug("Evicted image from pool")
	}
}

// evictElement removes el from both the order list and the key index.
// Caller holds p.mu.
func (p *Pool) evictElement(el *list.Element) {
	ent := el.Value.(*entry)
	p.order.Remove(el)
	delete(p.entries, ent.key)
	p.totalBytes -= ent.sizeBytes
}
