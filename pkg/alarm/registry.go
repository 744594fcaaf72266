package alarm

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

func (a *Alarm) upsertDevice(deviceID string, seen time.Time) (bool, error) {
	var device models.Device
	err := a.Db.Conn.First(&device, "device_id = ?", deviceID).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"last_seen": seen,
			"count":     gorm.Expr("count + 1"),
		}
		if err := a.Db.Conn.Model(&models.Device{}).
			Where("device_id = ?", deviceID).
			Updates(updates).Error; err != nil {
			return false, err
		}
		return device.Enabled, nil
	case err == gorm.ErrRecordNotFound:
		logger := common.GetLoggerWith(
			common.LoggerNameAlarmCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryRegistry),
		)
		device = models.Device{
			DeviceID:  deviceID,
			Enabled:   a.Cfg.DeviceForwardDefault,
			FirstSeen: seen,
			LastSeen:  seen,
			Count:     1,
		}
		if err := a.Db.Conn.Create(&device).Error; err != nil {
			return false, err
		}
		logger.Info("New device registered", zap.String("device_id", deviceID), zap.Bool("enabled", device.Enabled))
		return device.Enabled, nil
	default:
		return false, err
	}
}

func (a *Alarm) upsertChannel(deviceID, channelKey, channelName, boxName, indexOrGBID string, seen time.Time) (bool, error) {
	var channel models.Channel
	err := a.Db.Conn.First(&channel, "device_id = ? AND channel_key = ?", deviceID, channelKey).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"last_seen":     seen,
			"count":         gorm.Expr("count + 1"),
			"channel_name":  channelName,
			"box_name":      boxName,
			"index_or_gbid": indexOrGBID,
		}
		if err := a.Db.Conn.Model(&models.Channel{}).
			Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
			Updates(updates).Error; err != nil {
			return false, err
		}
		return channel.Enabled, nil
	case err == gorm.ErrRecordNotFound:
		logger := common.GetLoggerWith(
			common.LoggerNameAlarmCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryRegistry),
		)
		channel = models.Channel{
			DeviceID:    deviceID,
			ChannelKey:  channelKey,
			ChannelName: channelName,
			BoxName:     boxName,
			IndexOrGBID: indexOrGBID,
			Enabled:     a.Cfg.ChannelForwardDefault,
			FirstSeen:   seen,
			LastSeen:    seen,
			Count:       1,
		}
		if err := a.Db.Conn.Create(&channel).Error; err != nil {
			return false, err
		}
		logger.Info("New channel registered",
			zap.String("device_id", deviceID),
			zap.String("channel_key", channelKey),
			zap.Bool("enabled", channel.Enabled))
		return channel.Enabled, nil
	default:
		return false, err
	}
}

func (a *Alarm) setDeviceEnabled(deviceID string, enabled bool) error {
	return a.Db.Conn.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Update("enabled", enabled).Error
}

func (a *Alarm) setChannelEnabled(deviceID, channelKey string, enabled bool) error {
	return a.Db.Conn.Model(&models.Channel{}).
		Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
		Update("enabled", enabled).Error
}

func (a *Alarm) listDevices() ([]models.Device, error) {
	var devices []models.Device
	err := a.Db.Conn.Order("last_seen desc").Find(&devices).Error
	return devices, err
}

func (a *Alarm) listChannels(deviceFilter string) ([]models.Channel, error) {
	var channels []models.Channel
	q := a.Db.Conn.Order("last_seen desc")
	if deviceFilter != "" {
		q = q.Where("device_id = ?", deviceFilter)
	}
	err := q.Find(&channels).Error
	return channels, err
}

func (a *Alarm) replaceChannelRules(deviceID, channelKey string, weekday int, segments []RuleSegment) error {
	return a.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("device_id = ? AND channel_key = ? AND weekday = ?", deviceID, channelKey, weekday).
			Delete(&models.ChannelRule{}).Error; err != nil {
			return err
		}
		for i, seg := range segments {
			rule := models.ChannelRule{
				DeviceID:   deviceID,
				ChannelKey: channelKey,
				Weekday:    weekday,
				SegIdx:     i,
				StartHHMM:  seg.Start,
				EndHHMM:    seg.End,
			}
			if err := tx.Create(&rule).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Alarm) channelRules(deviceID, channelKey string) ([]models.ChannelRule, error) {
	var rules []models.ChannelRule
	err := a.Db.Conn.
		Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
		Order("weekday asc, seg_idx asc").
		Find(&rules).Error
	return rules, err
}

type IRegistryImpl struct {
	alarm *Alarm
}

func (ir *IRegistryImpl) UpsertDevice(deviceID string, seen time.Time) (bool, error) {
	return ir.alarm.upsertDevice(deviceID, seen)
}

func (ir *IRegistryImpl) UpsertChannel(deviceID, channelKey, channelName, boxName, indexOrGBID string, seen time.Time) (bool, error) {
	return ir.alarm.upsertChannel(deviceID, channelKey, channelName, boxName, indexOrGBID, seen)
}

func (ir *IRegistryImpl) SetDeviceEnabled(deviceID string, enabled bool) error {
	return ir.alarm.setDeviceEnabled(deviceID, enabled)
}

func (ir *IRegistryImpl) SetChannelEnabled(deviceID, channelKey string, enabled bool) error {
	return ir.alarm.setChannelEnabled(deviceID, channelKey, enabled)
}

func (ir *IRegistryImpl) ListDevices() ([]models.Device, error) {
	return ir.alarm.listDevices()
}

func (ir *IRegistryImpl) ListChannels(deviceFilter string) ([]models.Channel, error) {
	return ir.alarm.listChannels(deviceFilter)
}

func (ir *IRegistryImpl) ReplaceChannelRules(deviceID, channelKey string, weekday int, segments []RuleSegment) error {
	return ir.alarm.replaceChannelRules(deviceID, channelKey, weekday, segments)
}

func (ir *IRegistryImpl) ChannelRules(deviceID, channelKey string) ([]models.ChannelRule, error) {
	return ir.alarm.channelRules(deviceID, channelKey)
}

func (ir *IRegistryImpl) IsTimeOK(deviceID, channelKey string, now time.Time) (bool, error) {
	return ir.alarm.isTimeOK(deviceID, channelKey, now)
}

func (a *Alarm) GetIRegistry() IRegistry {
	return &IRegistryImpl{alarm: a}
}
