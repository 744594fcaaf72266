package maintain

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/db"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

// RetentionConfig bounds the event log and the snapshot store. Zero values
// disable the corresponding bound.
type RetentionConfig struct {
	SnapRetainDays int
	SnapMaxBytes   int64
	DBRetainDays   int
	DBMaxRows      int64
	Vacuum         bool
}

// RetentionStats summarizes one sweep.
type RetentionStats struct {
	DeletedRows  int64 `json:"deleted_rows"`
	DeletedFiles int   `json:"deleted_files"`
	RemovedDirs  int   `json:"removed_dirs"`
	FreedBytes   int64 `json:"freed_bytes"`
}

// Sweeper enforces retention bounds. Rows are always deleted before their
// files so a crash mid-sweep leaves orphan files (repairable) rather than
// broken references.
type Sweeper struct {
	Db    *db.DB
	Root  string // snapshot root directory (the snaps/ dir)
	Cfg   RetentionConfig
	Now   func() time.Time
	first bool
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sweep applies every configured bound once.
func (s *Sweeper) Sweep() (RetentionStats, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameMaintain,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryRetention),
	)

	var stats RetentionStats

	if s.Cfg.DBRetainDays > 0 {
		cutoff := s.now().AddDate(0, 0, -s.Cfg.DBRetainDays)
		res := s.Db.Conn.Where("ts < ?", cutoff).Delete(&models.Message{})
		if res.Error != nil {
			return stats, res.Error
		}
		stats.DeletedRows += res.RowsAffected
	}

	if s.Cfg.DBMaxRows > 0 {
		var total int64
		if err := s.Db.Conn.Model(&models.Message{}).Count(&total).Error; err != nil {
			return stats, err
		}
		if excess := total - s.Cfg.DBMaxRows; excess > 0 {
			var ids []int64
			if err := s.Db.Conn.Model(&models.Message{}).
				Order("ts asc, id asc").
				Limit(int(excess)).
				Pluck("id", &ids).Error; err != nil {
				return stats, err
			}
			res := s.Db.Conn.Where("id IN ?", ids).Delete(&models.Message{})
			if res.Error != nil {
				return stats, res.Error
			}
			stats.DeletedRows += res.RowsAffected
		}
	}

	if s.Cfg.SnapRetainDays > 0 {
		deleted, dirs, rows, freed, err := s.sweepOldDays()
		if err != nil {
			logger.Warn("Snapshot age sweep failed", zap.Error(err))
		}
		stats.DeletedFiles += deleted
		stats.RemovedDirs += dirs
		stats.DeletedRows += rows
		stats.FreedBytes += freed
	}

	if s.Cfg.SnapMaxBytes > 0 {
		deleted, rows, freed, err := s.sweepByteCeiling()
		if err != nil {
			logger.Warn("Snapshot size sweep failed", zap.Error(err))
		}
		stats.DeletedFiles += deleted
		stats.DeletedRows += rows
		stats.FreedBytes += freed
	}

	if s.Cfg.Vacuum && (stats.DeletedRows > 0 || s.first) {
		if err := s.Db.Vacuum(); err != nil {
			logger.Warn("Vacuum failed", zap.Error(err))
		}
	}
	s.first = false

	logger.Info("Retention sweep finished",
		zap.Int64("deleted_rows", stats.DeletedRows),
		zap.Int("deleted_files", stats.DeletedFiles),
		zap.Int("removed_dirs", stats.RemovedDirs),
		zap.Int64("freed_bytes", stats.FreedBytes))
	return stats, nil
}

// sweepOldDays removes whole day directories older than the age bound,
// deleting their rows first.
func (s *Sweeper) sweepOldDays() (files, dirs int, rows, freed int64, err error) {
	cutoffDay := s.now().AddDate(0, 0, -s.Cfg.SnapRetainDays).Format("20060102")

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, 0, 0, nil
		}
		return 0, 0, 0, 0, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || len(name) != 8 || name >= cutoffDay {
			continue
		}
		res := s.Db.Conn.Where("image_url LIKE ?", "%/snaps/"+name+"/%").
			Delete(&models.Message{})
		if res.Error != nil {
			return files, dirs, rows, freed, res.Error
		}
		rows += res.RowsAffected
		dayDir := filepath.Join(s.Root, name)
		sub, err := os.ReadDir(dayDir)
		if err != nil {
			continue
		}
		for _, f := range sub {
			if f.IsDir() {
				continue
			}
			if info, err := f.Info(); err == nil {
				freed += info.Size()
			}
			if os.Remove(filepath.Join(dayDir, f.Name())) == nil {
				files++
			}
		}
		if os.Remove(dayDir) == nil {
			dirs++
		}
	}
	return files, dirs, rows, freed, nil
}

type snapFile struct {
	path  string
	rel   string
	size  int64
	mtime time.Time
}

// sweepByteCeiling deletes oldest files by mtime until total size fits the
// ceiling. Rows referencing a deleted file are removed first.
func (s *Sweeper) sweepByteCeiling() (files int, rows int64, freed int64, err error) {
	var all []snapFile
	var total int64

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, 0, nil
		}
		return 0, 0, 0, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day := entry.Name()
		sub, err := os.ReadDir(filepath.Join(s.Root, day))
		if err != nil {
			continue
		}
		for _, f := range sub {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jpg") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			all = append(all, snapFile{
				path:  filepath.Join(s.Root, day, f.Name()),
				rel:   "snaps/" + day + "/" + f.Name(),
				size:  info.Size(),
				mtime: info.ModTime(),
			})
			total += info.Size()
		}
	}
	if total <= s.Cfg.SnapMaxBytes {
		return 0, 0, 0, nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].mtime.Before(all[j].mtime) })
	for _, f := range all {
		if total <= s.Cfg.SnapMaxBytes {
			break
		}
		res := s.Db.Conn.Where("image_url LIKE ?", "%/"+f.rel).Delete(&models.Message{})
		if res.Error != nil {
			return files, rows, freed, res.Error
		}
		rows += res.RowsAffected
		if os.Remove(f.path) != nil {
			continue
		}
		files++
		freed += f.size
		total -= f.size
	}
	return files, rows, freed, nil
}
