package alarm

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

// inlineOrphanCleanupLimit bounds how many rows a filtered delete will
// inspect for snapshot cleanup before deferring to the reconciler.
const inlineOrphanCleanupLimit = 5000

// MessageFilter is the typed query object for the event log. Each field is
// independently optional; Visible, when non-nil, restricts results to the
// given (device, channel) pairs; an empty non-nil set matches nothing.
// Computing the visible set is the caller's concern.
type MessageFilter struct {
	DeviceID   string
	ChannelKey string
	Type       *int
	Forwarded  *bool
	From       *time.Time
	To         *time.Time
	Visible    []ChannelRef
}

// apply translates the filter into one parameterized query. This is the
// single place filter semantics live; query, count and delete all share it.
func (f MessageFilter) apply(q *gorm.DB) *gorm.DB {
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.ChannelKey != "" {
		q = q.Where("channel_key = ?", f.ChannelKey)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Forwarded != nil {
		q = q.Where("forwarded = ?", *f.Forwarded)
	}
	if f.From != nil {
		q = q.Where("ts >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("ts <= ?", *f.To)
	}
	if f.Visible != nil {
		if len(f.Visible) == 0 {
			return q.Where("1 = 0")
		}
		pairs := common.Mapper(f.Visible, func(r ChannelRef) []any {
			return []any{r.DeviceID, r.ChannelKey}
		})
		q = q.Where("(device_id, channel_key) IN ?", pairs)
	}
	return q
}

func (a *Alarm) queryMessages(filter MessageFilter, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	if err := filter.apply(a.Db.Conn.Model(&models.Message{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Message
	err := filter.apply(a.Db.Conn.Model(&models.Message{})).
		Order("ts desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, total, err
}

// snapRefsByIDs collects the snapshot references of the given rows before
// they are deleted.
func (a *Alarm) snapRefsByIDs(ids []uint) ([]string, error) {
	var rows []models.Message
	if err := a.Db.Conn.Select("image_url").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	var rels []string
	for _, row := range rows {
		if rel, ok := imagestore.RelFromURL(row.ImageURL); ok {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

// deleteSnapIfOrphan removes the file (and its emptied day dir) once no
// message references it anymore. Failures are logged, never propagated.
func (a *Alarm) deleteSnapIfOrphan(rel string) {
	if rel == "" || a.Images == nil {
		return
	}
	logger := common.GetLoggerWith(
		common.LoggerNameAlarmCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryHistory),
	)

	var refs int64
	err := a.Db.Conn.Model(&models.Message{}).
		Where("image_url LIKE ?", "%/"+rel).
		Count(&refs).Error
	if err != nil || refs > 0 {
		return
	}

	path := a.Images.LocalPath(rel)
	if err := removeIfExists(path); err != nil {
		logger.Warn("Snapshot remove failed", zap.String("rel", rel), zap.Error(err))
		return
	}
	if day := dayOfRel(rel); day != "" {
		_ = a.Images.RemoveDayDirIfEmpty(day)
	}
}

func (a *Alarm) deleteMessagesByIDs(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rels, err := a.snapRefsByIDs(ids)
	if err != nil {
		return 0, err
	}

	res := a.Db.Conn.Where("id IN ?", ids).Delete(&models.Message{})
	if res.Error != nil {
		return 0, res.Error
	}

	for _, rel := range uniqueStrings(rels) {
		a.deleteSnapIfOrphan(rel)
	}
	return res.RowsAffected, nil
}

// deleteMessagesByFilter removes every matching row. For small result sets
// the snapshots are cleaned inline; past the limit cleanup is left to the
// reconciler and orphansHandled reports false.
func (a *Alarm) deleteMessagesByFilter(filter MessageFilter) (int64, bool, error) {
	var total int64
	if err := filter.apply(a.Db.Conn.Model(&models.Message{})).Count(&total).Error; err != nil {
		return 0, false, err
	}

	var rels []string
	inline := total <= inlineOrphanCleanupLimit
	if inline {
		var rows []models.Message
		if err := filter.apply(a.Db.Conn.Model(&models.Message{})).
			Select("image_url").Find(&rows).Error; err != nil {
			return 0, false, err
		}
		for _, row := range rows {
			if rel, ok := imagestore.RelFromURL(row.ImageURL); ok {
				rels = append(rels, rel)
			}
		}
	}

	res := filter.apply(a.Db.Conn.Model(&models.Message{})).Delete(&models.Message{})
	if res.Error != nil {
		return 0, false, res.Error
	}

	if inline {
		for _, rel := range uniqueStrings(rels) {
			a.deleteSnapIfOrphan(rel)
		}
	}
	return res.RowsAffected, inline, nil
}

type IHistoryImpl struct {
	alarm *Alarm
}

func (ih *IHistoryImpl) Query(filter MessageFilter, limit, offset int) ([]models.Message, int64, error) {
	return ih.alarm.queryMessages(filter, limit, offset)
}

func (ih *IHistoryImpl) DeleteByIDs(ids []uint) (int64, error) {
	return ih.alarm.deleteMessagesByIDs(ids)
}

func (ih *IHistoryImpl) DeleteByFilter(filter MessageFilter) (int64, bool, error) {
	return ih.alarm.deleteMessagesByFilter(filter)
}

func (a *Alarm) GetIHistory() IHistory {
	return &IHistoryImpl{alarm: a}
}
