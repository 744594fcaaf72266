// Package maintain keeps the event log and the snapshot store mutually
// consistent over time: bidirectional reconciliation, age/row/byte retention
// and the timers that drive both.
package maintain

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/db"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

type BrokenRefPolicy string

const (
	BrokenRefDeleteRecord BrokenRefPolicy = "delete_record"
	BrokenRefClearURL     BrokenRefPolicy = "clear_url"
)

type OrphanFilePolicy string

const (
	OrphanFileDelete OrphanFilePolicy = "delete_file"
	OrphanFileKeep   OrphanFilePolicy = "keep"
)

// Stats summarizes one reconciliation run.
type Stats struct {
	ScannedRefs  int  `json:"scanned_refs"`
	BrokenRefs   int  `json:"broken_refs"`
	FixedRows    int  `json:"fixed_rows"`
	OrphanFiles  int  `json:"orphan_files"`
	DeletedFiles int  `json:"deleted_files"`
	RemovedDirs  int  `json:"removed_dirs"`
	Truncated    bool `json:"truncated"`
}

// Reconciler repairs the two directions of DB<->snaps consistency: rows
// referencing missing files, and files no row references.
type Reconciler struct {
	Db     *db.DB
	Store  *imagestore.Store
	Broken BrokenRefPolicy
	Orphan OrphanFilePolicy
	// MaxRefs caps the reference scan to bound memory; 0 means unlimited.
	MaxRefs int
}

// Run executes one full reconciliation pass. When the reference scan hits
// MaxRefs the orphan phase is skipped entirely: a partial reference set
// must never justify deleting files. Broken-reference repair still runs on
// whatever was gathered.
func (r *Reconciler) Run() (Stats, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameMaintain,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryReconcile),
	)

	var stats Stats

	if err := os.MkdirAll(r.Store.Root(), 0o755); err != nil {
		return stats, err
	}

	referenced := make(map[string]struct{})
	rows, err := r.Db.Conn.Model(&models.Message{}).
		Select("image_url").
		Where("image_url IS NOT NULL AND image_url <> ''").
		Rows()
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var imageURL string
		if err := rows.Scan(&imageURL); err != nil {
			continue
		}
		stats.ScannedRefs++
		if r.MaxRefs > 0 && stats.ScannedRefs > r.MaxRefs {
			logger.Warn("Reference scan truncated, orphan deletion disabled for this run",
				zap.Int("max_refs", r.MaxRefs))
			stats.Truncated = true
			break
		}
		if rel, ok := imagestore.RelFromURL(imageURL); ok {
			referenced[rel] = struct{}{}
		}
	}
	if err := rows.Close(); err != nil {
		return stats, err
	}

	// phase 1: broken references
	for rel := range referenced {
		if _, err := os.Stat(r.Store.LocalPath(rel)); err == nil {
			continue
		}
		stats.BrokenRefs++
		fixed, err := r.repairBrokenRef(rel)
		if err != nil {
			logger.Warn("Broken reference repair failed", zap.String("rel", rel), zap.Error(err))
			continue
		}
		stats.FixedRows += fixed
		delete(referenced, rel)
	}

	// phase 2: orphan files
	if r.Orphan == OrphanFileDelete && !stats.Truncated {
		root := r.Store.Root()
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".jpg") {
				return nil
			}
			rel := "snaps/" + filepath.ToSlash(strings.TrimPrefix(path, root+string(os.PathSeparator)))
			if _, ok := referenced[rel]; ok {
				return nil
			}
			stats.OrphanFiles++
			if os.Remove(path) == nil {
				stats.DeletedFiles++
			}
			return nil
		})
	}

	// phase 3: drop emptied day directories
	entries, err := os.ReadDir(r.Store.Root())
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sub, err := os.ReadDir(filepath.Join(r.Store.Root(), entry.Name()))
			if err == nil && len(sub) == 0 {
				if os.Remove(filepath.Join(r.Store.Root(), entry.Name())) == nil {
					stats.RemovedDirs++
				}
			}
		}
	}

	logger.Info("Reconciliation finished",
		zap.Int("scanned_refs", stats.ScannedRefs),
		zap.Int("broken_refs", stats.BrokenRefs),
		zap.Int("fixed_rows", stats.FixedRows),
		zap.Int("orphan_files", stats.OrphanFiles),
		zap.Int("deleted_files", stats.DeletedFiles),
		zap.Int("removed_dirs", stats.RemovedDirs),
		zap.Bool("truncated", stats.Truncated))
	return stats, nil
}

func (r *Reconciler) repairBrokenRef(rel string) (int, error) {
	pattern := "%/" + rel
	if r.Broken == BrokenRefClearURL {
		res := r.Db.Conn.Model(&models.Message{}).
			Where("image_url LIKE ?", pattern).
			Update("image_url", "")
		return int(res.RowsAffected), res.Error
	}
	res := r.Db.Conn.Where("image_url LIKE ?", pattern).Delete(&models.Message{})
	return int(res.RowsAffected), res.Error
}
