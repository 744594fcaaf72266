package alarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/models"
	_ "algoedge.xyz/alarm-relay-service/pkg/testing"
)

func TestUpsertDeviceRegistersWithDefault(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	seen := time.Now().Truncate(time.Second)

	enabled, err := alarmObj.Registry.UpsertDevice(deviceID, seen)
	require.NoError(t, err)
	assert.True(t, enabled)

	var saved models.Device
	require.NoError(t, alarmObj.Db.Conn.First(&saved, "device_id = ?", deviceID).Error)
	assert.Equal(t, int64(1), saved.Count)
	assert.True(t, saved.Enabled)

	// second sighting bumps the counter and keeps first_seen
	later := seen.Add(time.Minute)
	enabled, err = alarmObj.Registry.UpsertDevice(deviceID, later)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, alarmObj.Db.Conn.First(&saved, "device_id = ?", deviceID).Error)
	assert.Equal(t, int64(2), saved.Count)
	assert.Equal(t, seen.Unix(), saved.FirstSeen.Unix())
	assert.Equal(t, later.Unix(), saved.LastSeen.Unix())
}

func TestUpsertDeviceKeepsManualDisable(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()

	_, err := alarmObj.Registry.UpsertDevice(deviceID, time.Now())
	require.NoError(t, err)
	require.NoError(t, alarmObj.Registry.SetDeviceEnabled(deviceID, false))

	// the disable decision survives further sightings
	enabled, err := alarmObj.Registry.UpsertDevice(deviceID, time.Now())
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestUpsertDeviceHonorsDisabledDefault(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	alarmObj.Cfg.DeviceForwardDefault = false
	deviceID := uuid.NewString()

	enabled, err := alarmObj.Registry.UpsertDevice(deviceID, time.Now())
	require.NoError(t, err)
	assert.False(t, enabled)

	// the persisted row must carry the disabled flag, not just the return value
	var saved models.Device
	require.NoError(t, alarmObj.Db.Conn.First(&saved, "device_id = ?", deviceID).Error)
	assert.False(t, saved.Enabled)
}

func TestUpsertChannelDisabledByDefault(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()

	enabled, err := alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "gate camera", "box-a", "cam-1", time.Now())
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, alarmObj.Registry.SetChannelEnabled(deviceID, "cam-1", true))

	enabled, err = alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "gate camera", "box-a", "cam-1", time.Now())
	require.NoError(t, err)
	assert.True(t, enabled)

	var saved models.Channel
	require.NoError(t, alarmObj.Db.Conn.
		First(&saved, "device_id = ? AND channel_key = ?", deviceID, "cam-1").Error)
	assert.Equal(t, int64(2), saved.Count)
}

func TestUpsertChannelRefreshesNames(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()

	_, err := alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "old name", "box-a", "gb-old", time.Now())
	require.NoError(t, err)
	_, err = alarmObj.Registry.UpsertChannel(deviceID, "cam-1", "new name", "box-b", "gb-new", time.Now())
	require.NoError(t, err)

	var saved models.Channel
	require.NoError(t, alarmObj.Db.Conn.
		First(&saved, "device_id = ? AND channel_key = ?", deviceID, "cam-1").Error)
	assert.Equal(t, "new name", saved.ChannelName)
	assert.Equal(t, "box-b", saved.BoxName)
	assert.Equal(t, "gb-new", saved.IndexOrGBID)
	assert.Equal(t, int64(2), saved.Count)
}

func TestListChannelsFilteredByDevice(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	devA := uuid.NewString()
	devB := uuid.NewString()

	_, err := alarmObj.Registry.UpsertChannel(devA, "cam-1", "", "", "", time.Now())
	require.NoError(t, err)
	_, err = alarmObj.Registry.UpsertChannel(devA, "cam-2", "", "", "", time.Now())
	require.NoError(t, err)
	_, err = alarmObj.Registry.UpsertChannel(devB, "cam-1", "", "", "", time.Now())
	require.NoError(t, err)

	channels, err := alarmObj.Registry.ListChannels(devA)
	require.NoError(t, err)
	assert.Len(t, channels, 2)

	all, err := alarmObj.Registry.ListChannels("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
