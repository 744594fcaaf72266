package alarm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

// Ack is the ingestion acknowledgment. Transports always return it with a
// success status so edge boxes do not retry forever; Reason explains what
// happened using the fixed vocabulary.
type Ack struct {
	Message   string `json:"message"`
	Forwarded bool   `json:"forwarded"`
	Reason    string `json:"reason,omitempty"`

	// Echo-mode diagnostics.
	Title    string `json:"title,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	GateOpen bool   `json:"gate_open,omitempty"`
}

// handleEvent is the single ingestion path: dedup, registry upsert, gating,
// image resolution, fan-out, persistence. Only a persistence failure
// propagates as an error; everything else degrades into the Ack.
func (a *Alarm) handleEvent(ctx context.Context, ev *Event, raw []byte, echo bool) (*Ack, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameAlarmCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryIngest),
	)

	now := a.now()
	fingerprint := ev.DedupKey(now)
	suppressed := a.Dedup.ShouldSuppress(fingerprint, now)
	if suppressed && !a.Cfg.RecordSuppressed {
		logger.Debug("Suppressed duplicate event", zap.String("dedup_key", fingerprint))
		return &Ack{Message: "duplicate suppressed", Reason: ReasonSuppressed}, nil
	}

	signedAt := ev.SignedAt(now)
	deviceID := ev.Identity()
	channelKey, channelName, boxName, indexOrGBID := ev.PositionKey()

	deviceEnabled, err := a.Registry.UpsertDevice(deviceID, signedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	channelEnabled, err := a.Registry.UpsertChannel(deviceID, channelKey, channelName, boxName, indexOrGBID, signedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert channel: %w", err)
	}
	timeOK, err := a.Registry.IsTimeOK(deviceID, channelKey, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate time rules: %w", err)
	}

	gateOpen := deviceEnabled && channelEnabled && timeOK

	imageURL := a.resolveImage(ev, ev.Day(now))
	title, text := a.BuildMarkdown(ev, imageURL)

	var outcome Outcome
	switch {
	case suppressed:
		// RecordSuppressed keeps the row but never re-forwards a duplicate.
		outcome = Outcome{Forwarded: false, Reason: ReasonSuppressed}
	case echo:
		outcome = Outcome{Forwarded: false, Reason: ReasonEcho}
	case !gateOpen:
		outcome = Outcome{Forwarded: false, Reason: GateReason(deviceEnabled, channelEnabled, timeOK)}
	default:
		targetIDs, err := a.Webhooks.ChannelWebhookIDs(deviceID, channelKey)
		if err != nil {
			return nil, fmt.Errorf("resolve webhook bindings: %w", err)
		}
		if len(targetIDs) == 0 {
			if did, found, err := a.Webhooks.DefaultEnabledID(); err != nil {
				return nil, fmt.Errorf("resolve default webhook: %w", err)
			} else if found {
				targetIDs = []uint{did}
			}
		}
		outcome = a.dispatch(ctx, targetIDs, title, text)
	}

	record := models.Message{
		TS:            signedAt,
		DeviceID:      deviceID,
		ChannelKey:    channelKey,
		ChannelName:   channelName,
		Type:          ev.Type.Or(-1),
		TypeName:      ev.TypeName,
		BoxName:       ev.BoxName,
		DeviceName:    ev.DeviceName,
		Score:         ev.Score.String(),
		ImageURL:      imageURL,
		Forwarded:     outcome.Forwarded,
		ForwardReason: outcome.Reason,
		DedupKey:      fingerprint,
		RawJSON:       string(raw),
	}
	// insert-or-ignore on the unique fingerprint: the durable backstop
	// beneath the in-memory cache
	err = a.Db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	logger.Info("Event processed",
		zap.String("device_id", deviceID),
		zap.String("channel_key", channelKey),
		zap.Bool("forwarded", outcome.Forwarded),
		zap.String("reason", outcome.Reason))

	if echo {
		return &Ack{
			Message:  "echo",
			Reason:   outcome.Reason,
			Title:    title,
			ImageURL: imageURL,
			GateOpen: gateOpen,
		}, nil
	}
	return &Ack{Message: "ok", Forwarded: outcome.Forwarded, Reason: outcome.Reason}, nil
}

// resolveImage is strictly best-effort: any decode or write failure means
// "no image", never a failed event.
func (a *Alarm) resolveImage(ev *Event, day string) string {
	if a.Images == nil {
		return ""
	}
	b64 := firstNonEmpty(ev.SignBigAvatarBase64, ev.SignBigAvatar, ev.SignAvatar)
	if b64 == "" {
		return ""
	}
	url, err := a.Images.SaveBase64(b64, day)
	if err != nil {
		common.GetLoggerWith(
			common.LoggerNameAlarmCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryImage),
		).Warn("Snapshot decode/write failed", zap.Error(err))
		return ""
	}
	return url
}

type IIngestImpl struct {
	alarm *Alarm
}

func (ii *IIngestImpl) HandleEvent(ctx context.Context, ev *Event, raw []byte, echo bool) (*Ack, error) {
	return ii.alarm.handleEvent(ctx, ev, raw, echo)
}

func (a *Alarm) GetIIngest() IIngest {
	return &IIngestImpl{alarm: a}
}
