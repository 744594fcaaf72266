package alarm

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/models"
	_ "algoedge.xyz/alarm-relay-service/pkg/testing"
)

func testEvent(deviceID string) *Event {
	ev := &Event{
		DeviceID:   deviceID,
		IndexCode:  "cam-1",
		DeviceName: "gate camera",
		BoxName:    "box-a",
		SignTime:   "2025-06-10 10:00:03",
	}
	ev.Type.Int, ev.Type.Valid = 11, true
	return ev
}

func TestHandleEventFirstSightingChannelDisabled(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	deviceID := uuid.NewString()
	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)

	assert.False(t, ack.Forwarded)
	assert.Equal(t, ReasonChannelDisabled, ack.Reason)

	// the event is still recorded, and the registry learned both entities
	var msg models.Message
	require.NoError(t, alarmObj.Db.Conn.First(&msg, "device_id = ?", deviceID).Error)
	assert.Equal(t, ReasonChannelDisabled, msg.ForwardReason)
	assert.Equal(t, "cam-1", msg.ChannelKey)

	var device models.Device
	require.NoError(t, alarmObj.Db.Conn.First(&device, "device_id = ?", deviceID).Error)
	assert.True(t, device.Enabled)
}

func TestHandleEventDuplicateSuppressedSingleRow(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	deviceID := uuid.NewString()

	_, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)
	assert.False(t, ack.Forwarded)
	assert.Equal(t, ReasonSuppressed, ack.Reason)

	var count int64
	require.NoError(t, alarmObj.Db.Conn.Model(&models.Message{}).
		Where("device_id = ?", deviceID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleEventOutOfWindowOnTuesday(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock() // Tuesday 10:00

	deviceID := uuid.NewString()
	_, err := alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "gate camera", "box-a", "cam-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, alarmObj.Registry.SetChannelEnabled(deviceID, "cam-1", true))
	// Monday-only schedule
	require.NoError(t, alarmObj.Registry.ReplaceChannelRules(deviceID, "cam-1", 0, []RuleSegment{
		{Start: "08:00", End: "18:00"},
	}))

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)
	assert.False(t, ack.Forwarded)
	assert.Equal(t, ReasonOutOfWindow, ack.Reason)
}

func TestHandleEventForwardsViaDefaultWebhook(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, mockSenders := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	deviceID := uuid.NewString()
	_, err := alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "gate camera", "box-a", "cam-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, alarmObj.Registry.SetChannelEnabled(deviceID, "cam-1", true))

	mockSenders.EXPECT().Invalidate().AnyTimes()
	hookID, err := alarmObj.Webhooks.Add("primary", "token-1", "", true, false)
	require.NoError(t, err)

	sender := NewMockSender(ctrl)
	sender.EXPECT().
		SendMarkdown(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	mockSenders.EXPECT().Resolve(hookID).Return(sender, true)

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)
	assert.True(t, ack.Forwarded)
	assert.Equal(t, "forwarded (1/1)", ack.Reason)
}

func TestHandleEventNoUsableWebhook(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	deviceID := uuid.NewString()
	_, err := alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "gate camera", "box-a", "cam-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, alarmObj.Registry.SetChannelEnabled(deviceID, "cam-1", true))

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), false)
	require.NoError(t, err)
	assert.False(t, ack.Forwarded)
	assert.Equal(t, ReasonNoWebhook, ack.Reason)
}

func TestHandleEventEchoNeverForwards(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	deviceID := uuid.NewString()

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), testEvent(deviceID), []byte("{}"), true)
	require.NoError(t, err)
	assert.False(t, ack.Forwarded)
	assert.Equal(t, ReasonEcho, ack.Reason)
	assert.NotEmpty(t, ack.Title)
	assert.False(t, ack.GateOpen)

	// echo events are still recorded for diagnosis
	var count int64
	require.NoError(t, alarmObj.Db.Conn.Model(&models.Message{}).
		Where("device_id = ?", deviceID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleEventSavesSnapshotPartitionedBySignTime(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	staticDir := t.TempDir()
	alarmObj.Images = imagestore.New(staticDir, "")

	deviceID := uuid.NewString()
	ev := testEvent(deviceID)
	ev.SignBigAvatarBase64 = base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), ev, []byte("{}"), true)
	require.NoError(t, err)
	assert.Contains(t, ack.ImageURL, "/snaps/20250610/")

	files, err := os.ReadDir(filepath.Join(staticDir, "snaps", "20250610"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	var msg models.Message
	require.NoError(t, alarmObj.Db.Conn.First(&msg, "device_id = ?", deviceID).Error)
	assert.Equal(t, ack.ImageURL, msg.ImageURL)
}

func TestHandleEventBadImageDegradesGracefully(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()
	alarmObj.Images = imagestore.New(t.TempDir(), "")

	deviceID := uuid.NewString()
	ev := testEvent(deviceID)
	ev.SignBigAvatarBase64 = "!!!not-base64!!!"

	ack, err := alarmObj.Ingest.HandleEvent(context.Background(), ev, []byte("{}"), true)
	require.NoError(t, err)
	assert.Empty(t, ack.ImageURL)
}
