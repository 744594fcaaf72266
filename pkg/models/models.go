package models

import "time"

// Device is one edge AI box. Created on the first event it ever sends.
type Device struct {
	DeviceID  string `gorm:"primaryKey"`
	Alias     string
	Enabled   bool `gorm:"not null"`
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int64 `gorm:"not null;default:0"`
}

// Channel is one camera/position under a device. The key is derived from
// indexCode > GBID > deviceName, in that order.
type Channel struct {
	DeviceID    string `gorm:"primaryKey"`
	ChannelKey  string `gorm:"primaryKey"`
	ChannelName string
	BoxName     string
	IndexOrGBID string `gorm:"column:index_or_gbid"`
	Enabled     bool   `gorm:"not null"`
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int64 `gorm:"not null;default:0"`
}

// ChannelRule is one forwarding time segment for a channel on a weekday
// (0=Monday .. 6=Sunday). Times are 'HH:MM'. start==end means all day,
// start>end spans midnight.
type ChannelRule struct {
	DeviceID   string `gorm:"primaryKey"`
	ChannelKey string `gorm:"primaryKey"`
	Weekday    int    `gorm:"primaryKey"`
	SegIdx     int    `gorm:"primaryKey"`
	StartHHMM  string `gorm:"not null"`
	EndHHMM    string `gorm:"not null"`
}

// Webhook is one outbound notification target. At most one enabled webhook
// is the default fallback for channels without explicit bindings.
type Webhook struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	AccessToken string `gorm:"not null"`
	Secret      string
	Enabled     bool `gorm:"not null"`
	IsDefault   bool `gorm:"not null"`
	CreatedAt   time.Time
}

// ChannelWebhook binds a channel to one of its webhook targets.
type ChannelWebhook struct {
	DeviceID   string `gorm:"primaryKey"`
	ChannelKey string `gorm:"primaryKey"`
	WebhookID  uint   `gorm:"primaryKey"`
}

// Message is one persisted alarm event, immutable once written. DedupKey
// carries the uniqueness constraint that makes inserts idempotent.
type Message struct {
	ID            uint      `gorm:"primaryKey"`
	TS            time.Time `gorm:"index"`
	DeviceID      string    `gorm:"index;index:idx_messages_channel,priority:1"`
	ChannelKey    string    `gorm:"index:idx_messages_channel,priority:2"`
	ChannelName   string
	Type          int
	TypeName      string
	BoxName       string
	DeviceName    string
	Score         string
	ImageURL      string
	Forwarded     bool `gorm:"not null;default:false"`
	ForwardReason string
	DedupKey      string `gorm:"uniqueIndex"`
	RawJSON       string
}
