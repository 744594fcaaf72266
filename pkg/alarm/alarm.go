package alarm

import (
	"context"
	"time"

	"algoedge.xyz/alarm-relay-service/pkg/db"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

// RuleSegment is one permitted (start, end) window, 'HH:MM' each.
type RuleSegment struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ChannelRef identifies one (device, channel) pair.
type ChannelRef struct {
	DeviceID   string `json:"device_id"`
	ChannelKey string `json:"channel_key"`
}

type IIngest interface {
	HandleEvent(ctx context.Context, ev *Event, raw []byte, echo bool) (*Ack, error)
}

type IRegistry interface {
	UpsertDevice(deviceID string, seen time.Time) (enabled bool, err error)
	UpsertChannel(deviceID, channelKey, channelName, boxName, indexOrGBID string, seen time.Time) (enabled bool, err error)
	SetDeviceEnabled(deviceID string, enabled bool) error
	SetChannelEnabled(deviceID, channelKey string, enabled bool) error
	ListDevices() ([]models.Device, error)
	ListChannels(deviceFilter string) ([]models.Channel, error)
	ReplaceChannelRules(deviceID, channelKey string, weekday int, segments []RuleSegment) error
	ChannelRules(deviceID, channelKey string) ([]models.ChannelRule, error)
	IsTimeOK(deviceID, channelKey string, now time.Time) (bool, error)
}

type IWebhookAdmin interface {
	List(enabledOnly bool) ([]models.Webhook, error)
	Add(name, accessToken, secret string, enabled, isDefault bool) (uint, error)
	UpdateEnable(id uint, enabled bool, isDefault *bool) error
	Delete(id uint) error
	SetDefault(id uint) error
	DefaultEnabledID() (uint, bool, error)
	ChannelWebhookIDs(deviceID, channelKey string) ([]uint, error)
	ReplaceChannelWebhooks(deviceID, channelKey string, webhookIDs []uint) error
}

type IHistory interface {
	Query(filter MessageFilter, limit, offset int) ([]models.Message, int64, error)
	DeleteByIDs(ids []uint) (int64, error)
	DeleteByFilter(filter MessageFilter) (deleted int64, orphansHandled bool, err error)
}

//go:generate mockgen -source=alarm.go -destination=mock_senders.go -package=alarm Sender,SenderResolver

// Sender delivers one rendered notification to one webhook target.
type Sender interface {
	SendMarkdown(ctx context.Context, title, text string, atUserIDs, atMobiles []string) error
}

// SenderResolver resolves live webhook credentials into senders. Resolvers
// cache; Invalidate must be called after every webhook or binding mutation.
type SenderResolver interface {
	Resolve(webhookID uint) (Sender, bool)
	Invalidate()
}

// Config is the core's injected configuration. No ambient globals.
type Config struct {
	AppName string

	DeviceForwardDefault  bool
	ChannelForwardDefault bool

	// RecordSuppressed keeps writing rows for suppressed duplicates instead
	// of dropping them entirely.
	RecordSuppressed bool

	AtUserIDs []string
	AtMobiles []string
}

// Alarm is the core engine: dedup, gating, image resolution, fan-out and
// persistence behind the single ingestion entry point.
type Alarm struct {
	Db      db.DB
	Dedup   *DedupCache
	Images  *imagestore.Store
	Senders SenderResolver
	Cfg     Config

	// Now is the injected clock, nil means time.Now.
	Now func() time.Time

	Ingest   IIngest
	Registry IRegistry
	Webhooks IWebhookAdmin
	History  IHistory
}

func (a *Alarm) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

type ServiceOpts struct {
	Ingest   IIngest
	Registry IRegistry
	Webhooks IWebhookAdmin
	History  IHistory
}

func (a *Alarm) WithServices(opts ServiceOpts) *Alarm {
	if opts.Ingest != nil {
		a.Ingest = opts.Ingest
	}
	if opts.Registry != nil {
		a.Registry = opts.Registry
	}
	if opts.Webhooks != nil {
		a.Webhooks = opts.Webhooks
	}
	if opts.History != nil {
		a.History = opts.History
	}
	return a
}
