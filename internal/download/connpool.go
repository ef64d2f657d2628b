package download

import (
	"log"
	"sync"

	"github.com/phenodcc/crawler/internal/filesource"
	"github.com/phenodcc/crawler/internal/model"
)

// connCache keeps one live filesource.Driver per hostname for the
// lifetime of a single worker (§4.7: "per-protocol cache keyed by
// hostname within this worker only"). It is never shared across workers.
type connCache struct {
	mu    sync.Mutex
	byKey map[string]filesource.Driver
}

func newConnCache() *connCache {
	return &connCache{byKey: make(map[string]filesource.Driver)}
}

// get dials src on first use and reuses the cached connection afterward.
func (c *connCache) get(src model.FileSource) (filesource.Driver, error) {
	key := string(src.Protocol) + "://" + src.Hostname
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.byKey[key]; ok {
		return d, nil
	}
	d, err := filesource.Dial(src)
	if err != nil {
		return nil, err
	}
	c.byKey[key] = d
	return d, nil
}

// invalidate drops a cached connection that turned out to be dead, so the
// next get redials rather than reusing a broken one.
func (c *connCache) invalidate(src model.FileSource) {
	key := string(src.Protocol) + "://" + src.Hostname
	c.mu.Lock()
	d, ok := c.byKey[key]
	delete(c.byKey, key)
	c.mu.Unlock()
	if ok {
		d.Close()
	}
}

// Close finalizes every cached connection, the explicit finalization step
// of §4.7's "all cached connections are closed in a finalization step on
// worker exit".
func (c *connCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, d := range c.byKey {
		if err := d.Close(); err != nil {
			log.Printf("download: close connection %s: %v", key, err)
		}
	}
	c.byKey = make(map[string]filesource.Driver)
}
