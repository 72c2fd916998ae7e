// Package cache is the on-disk tile store. One file per tile at
// <root>/<server>/<z>/<x>/<y>.<ext>; the file mtime doubles as the
// last-access mark for a future cull pass.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

type DiskCache struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) *DiskCache {
	if logger == nil {
		logger = slog.Default()
	}

	return &DiskCache{root: root, logger: logger.With("logger", "cache")}
}

// DefaultRoot is the per-user cache directory.
func DefaultRoot() (string, error) {
	base, err := os.UserCacheDir()

	if err != nil {
		return "", err
	}

	return filepath.Join(base, "ptolemy"), nil
}

func (c *DiskCache) Root() string {
	return c.root
}

func (c *DiskCache) Path(server *model.Server, t model.Tile) string {
	return filepath.Join(c.root, server.GetKey(),
		fmt.Sprintf("%d", t.Z), fmt.Sprintf("%d", t.X), fmt.Sprintf("%d.%s", t.Y, server.GetExt()))
}

// Get returns the stored bytes for the tile. It never goes to the network.
func (c *DiskCache) Get(server *model.Server, t model.Tile) ([]byte, bool) {
	data, err := os.ReadFile(c.Path(server, t))

	if err != nil {
		return nil, false
	}

	return data, true
}

// Put stores the tile bytes, creating directories on demand. Overwrites are
// idempotent. Concurrent writers hit distinct keys, so no locking is needed;
// MkdirAll tolerates concurrent creation.
func (c *DiskCache) Put(server *model.Server, t model.Tile, data []byte) error {
	p := c.Path(server, t)

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	return os.WriteFile(p, data, 0644)
}

// Touch refreshes the last-access mark. Reserved for the eviction manager;
// a missing file is not an error.
func (c *DiskCache) Touch(server *model.Server, t model.Tile) {
	now := time.Now()

	if err := os.Chtimes(c.Path(server, t), now, now); err != nil && !os.IsNotExist(err) {
		c.logger.Debug("touch failed", "tile", t.String(), "error", err)
	}
}
