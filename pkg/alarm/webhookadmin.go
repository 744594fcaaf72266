package alarm

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/db"
	"algoedge.xyz/alarm-relay-service/pkg/ding"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

func (a *Alarm) listWebhooks(enabledOnly bool) ([]models.Webhook, error) {
	var hooks []models.Webhook
	q := a.Db.Conn.Order("id asc")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	err := q.Find(&hooks).Error
	return hooks, err
}

func (a *Alarm) addWebhook(name, accessToken, secret string, enabled, isDefault bool) (uint, error) {
	hook := models.Webhook{
		Name:        name,
		AccessToken: accessToken,
		Secret:      secret,
		Enabled:     enabled,
		IsDefault:   false,
	}
	if err := a.Db.Conn.Create(&hook).Error; err != nil {
		return 0, err
	}
	a.invalidateSenders()

	if isDefault {
		if err := a.setDefaultWebhook(hook.ID); err != nil {
			return hook.ID, err
		}
	} else if err := a.ensureDefaultWebhook(); err != nil {
		return hook.ID, err
	}
	return hook.ID, nil
}

func (a *Alarm) updateWebhookEnable(id uint, enabled bool, isDefault *bool) error {
	updates := map[string]any{"enabled": enabled}
	if isDefault != nil {
		updates["is_default"] = *isDefault
	}
	if err := a.Db.Conn.Model(&models.Webhook{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return err
	}
	a.invalidateSenders()
	return a.ensureDefaultWebhook()
}

func (a *Alarm) deleteWebhook(id uint) error {
	err := a.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Webhook{}, id).Error; err != nil {
			return err
		}
		return tx.Where("webhook_id = ?", id).Delete(&models.ChannelWebhook{}).Error
	})
	if err != nil {
		return err
	}
	a.invalidateSenders()
	return a.ensureDefaultWebhook()
}

// setDefaultWebhook makes id the single default, forcing it enabled.
func (a *Alarm) setDefaultWebhook(id uint) error {
	err := a.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Webhook{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.Webhook{}).Where("id = ?", id).
			Updates(map[string]any{"is_default": true, "enabled": true}).Error
	})
	if err != nil {
		return err
	}
	a.invalidateSenders()
	return nil
}

// ensureDefaultWebhook restores the invariant "exactly one enabled default
// whenever any enabled webhook exists": if none is marked, the lowest-id
// enabled webhook is promoted.
func (a *Alarm) ensureDefaultWebhook() error {
	var count int64
	if err := a.Db.Conn.Model(&models.Webhook{}).
		Where("enabled = ? AND is_default = ?", true, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var candidate models.Webhook
	err := a.Db.Conn.Where("enabled = ?", true).Order("id asc").First(&candidate).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	logger := common.GetLoggerWith(
		common.LoggerNameAlarmCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryWebhook),
	)
	logger.Info("Promoting webhook to default", zap.Uint("webhook_id", candidate.ID))
	return a.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Webhook{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.Webhook{}).Where("id = ?", candidate.ID).
			Update("is_default", true).Error
	})
}

func (a *Alarm) defaultEnabledWebhookID() (uint, bool, error) {
	var hook models.Webhook
	err := a.Db.Conn.
		Where("enabled = ? AND is_default = ?", true, true).
		Order("id asc").
		First(&hook).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return hook.ID, true, nil
}

func (a *Alarm) channelWebhookIDs(deviceID, channelKey string) ([]uint, error) {
	var bindings []models.ChannelWebhook
	err := a.Db.Conn.
		Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
		Order("webhook_id asc").
		Find(&bindings).Error
	if err != nil {
		return nil, err
	}
	return common.Mapper(bindings, func(b models.ChannelWebhook) uint { return b.WebhookID }), nil
}

func (a *Alarm) replaceChannelWebhooks(deviceID, channelKey string, webhookIDs []uint) error {
	err := a.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
			Delete(&models.ChannelWebhook{}).Error; err != nil {
			return err
		}
		for _, wid := range webhookIDs {
			binding := models.ChannelWebhook{DeviceID: deviceID, ChannelKey: channelKey, WebhookID: wid}
			if err := tx.Create(&binding).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.invalidateSenders()
	return nil
}

func (a *Alarm) invalidateSenders() {
	if a.Senders != nil {
		a.Senders.Invalidate()
	}
}

type IWebhookAdminImpl struct {
	alarm *Alarm
}

func (iw *IWebhookAdminImpl) List(enabledOnly bool) ([]models.Webhook, error) {
	return iw.alarm.listWebhooks(enabledOnly)
}

func (iw *IWebhookAdminImpl) Add(name, accessToken, secret string, enabled, isDefault bool) (uint, error) {
	return iw.alarm.addWebhook(name, accessToken, secret, enabled, isDefault)
}

func (iw *IWebhookAdminImpl) UpdateEnable(id uint, enabled bool, isDefault *bool) error {
	return iw.alarm.updateWebhookEnable(id, enabled, isDefault)
}

func (iw *IWebhookAdminImpl) Delete(id uint) error {
	return iw.alarm.deleteWebhook(id)
}

func (iw *IWebhookAdminImpl) SetDefault(id uint) error {
	return iw.alarm.setDefaultWebhook(id)
}

func (iw *IWebhookAdminImpl) DefaultEnabledID() (uint, bool, error) {
	return iw.alarm.defaultEnabledWebhookID()
}

func (iw *IWebhookAdminImpl) ChannelWebhookIDs(deviceID, channelKey string) ([]uint, error) {
	return iw.alarm.channelWebhookIDs(deviceID, channelKey)
}

func (iw *IWebhookAdminImpl) ReplaceChannelWebhooks(deviceID, channelKey string, webhookIDs []uint) error {
	return iw.alarm.replaceChannelWebhooks(deviceID, channelKey, webhookIDs)
}

func (a *Alarm) GetIWebhookAdmin() IWebhookAdmin {
	return &IWebhookAdminImpl{alarm: a}
}

// RobotCache resolves webhook ids to live ding senders, caching both hits
// and misses until the next configuration write invalidates it.
type RobotCache struct {
	Db      *db.DB
	Timeout time.Duration

	mu    sync.Mutex
	cache map[uint]Sender
}

func NewRobotCache(d *db.DB, timeout time.Duration) *RobotCache {
	return &RobotCache{
		Db:      d,
		Timeout: timeout,
		cache:   make(map[uint]Sender),
	}
}

func (rc *RobotCache) Resolve(webhookID uint) (Sender, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if sender, cached := rc.cache[webhookID]; cached {
		return sender, sender != nil
	}

	var hook models.Webhook
	err := rc.Db.Conn.First(&hook, webhookID).Error
	if err != nil || !hook.Enabled {
		rc.cache[webhookID] = nil
		return nil, false
	}

	sender := ding.NewRobot(hook.AccessToken, hook.Secret, rc.Timeout)
	rc.cache[webhookID] = sender
	return sender, true
}

func (rc *RobotCache) Invalidate() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache = make(map[uint]Sender)
}
