package rag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"rag-chatbot/internal/chromemdb"
)

// BuildFunc turns the document at path into a vector index.
type BuildFunc func(ctx context.Context, path string) (*chromemdb.Index, error)

// IndexCache memoises built indexes by document path. Concurrent requests
// for the same path share one build; failed builds are not stored.
type IndexCache struct {
	build BuildFunc

	mu      sync.Mutex
	entries map[string]*chromemdb.Index
	gen     map[string]uint64

	group  singleflight.Group
	builds atomic.Int64
}

func NewIndexCache(build BuildFunc) *IndexCache {
	return &IndexCache{
		build:   build,
		entries: make(map[string]*chromemdb.Index),
		gen:     make(map[string]uint64),
	}
}

// Get returns the index for path, building it on first use. The build itself
// is not cancelled when ctx is; ctx only bounds how long this caller waits.
func (c *IndexCache) Get(ctx context.Context, path string) (*chromemdb.Index, error) {
	c.mu.Lock()
	if ix, ok := c.entries[path]; ok {
		c.mu.Unlock()
		return ix, nil
	}
	c.mu.Unlock()

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(path, func() (any, error) {
		c.mu.Lock()
		if ix, ok := c.entries[path]; ok {
			c.mu.Unlock()
			return ix, nil
		}
		gen := c.gen[path]
		c.mu.Unlock()

		c.builds.Add(1)
		log.Info().Str("path", path).Msg("Building vector index")
		ix, err := c.build(buildCtx, path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Index build failed")
			return nil, err
		}

		c.mu.Lock()
		// the file was replaced while we were reading it
		if c.gen[path] == gen {
			c.entries[path] = ix
		}
		c.mu.Unlock()
		return ix, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*chromemdb.Index), nil
	}
}

// Forget drops the entry for path so the next Get rebuilds it.
func (c *IndexCache) Forget(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.gen[path]++
	c.mu.Unlock()
	c.group.Forget(path)
}

// Builds returns how many builds have been started.
func (c *IndexCache) Builds() int64 {
	return c.builds.Load()
}
