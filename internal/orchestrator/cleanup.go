package orchestrator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// cacheCleaner resets the global caches of the primary tool after every
// invocation. Availability is probed once; a failed probe disables
// cleaning for the rest of the process. Every failure is logged and
// swallowed.
type cacheCleaner struct {
	once     sync.Once
	mu       sync.Mutex
	resetter compiler.CacheResetter
}

var caches = &cacheCleaner{}

func (c *cacheCleaner) probe(tool compiler.Tool, logger *slog.Logger) {
	c.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Debug("global cache probe failed", "error", fmt.Sprint(r))
			}
		}()
		owner, ok := tool.(compiler.GlobalCacheOwner)
		if !ok {
			logger.Debug("tool exposes no global caches", "tool", tool.Name())
			return
		}
		r, err := owner.GlobalCaches()
		if err != nil {
			logger.Debug("global caches unavailable", "tool", tool.Name(), "error", err)
			return
		}
		c.resetter = r
	})
}

func (c *cacheCleaner) clean(tool compiler.Tool, logger *slog.Logger) {
	c.probe(tool, logger)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("global cache reset failed", "error", fmt.Sprint(r))
		}
	}()
	if err := c.resetter.ResetInternTable(); err != nil {
		logger.Debug("intern table reset failed", "error", err)
	}
	if err := c.resetter.ResetArchiveIndex(); err != nil {
		logger.Debug("archive index reset failed", "error", err)
	}
}
