package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sweep removes working directories older than maxAge. They are left behind
// when the process dies between Compile and Release.
func (d *Driver) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(d.opts.WorkRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read work root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(workDirPattern, entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(d.opts.WorkRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			d.logger.Warn("sweep work dir", "dir", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		d.logger.Info("stale work dirs removed", "count", removed)
	}
	return removed, nil
}
