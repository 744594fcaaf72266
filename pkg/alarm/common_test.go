package alarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"algoedge.xyz/alarm-relay-service/pkg/db"
)

// GetTestAlarmWithMemorySqliteDialector builds an engine backed by its own
// in-memory dataset so tests that mutate global tables stay isolated. The
// returned mock resolver is wired in when useMockSenders is true.
func GetTestAlarmWithMemorySqliteDialector(t *testing.T, useMockSenders bool) (
	*gomock.Controller,
	*Alarm,
	*MockSenderResolver,
) {
	ctrl := gomock.NewController(t)
	mockSenders := NewMockSenderResolver(ctrl)

	dbInstance, err := db.New(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)

	alarmInstance := &Alarm{
		Db:    *dbInstance,
		Dedup: NewDedupCache(DedupConfig{}),
		Cfg: Config{
			AppName:              "alarm-relay-test",
			DeviceForwardDefault: true,
		},
	}
	if useMockSenders {
		alarmInstance.Senders = mockSenders
	}
	alarmInstance.WithServices(ServiceOpts{
		Ingest:   alarmInstance.GetIIngest(),
		Registry: alarmInstance.GetIRegistry(),
		Webhooks: alarmInstance.GetIWebhookAdmin(),
		History:  alarmInstance.GetIHistory(),
	})

	return ctrl, alarmInstance, mockSenders
}

// fixedClock pins the engine clock to a Tuesday morning.
func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 10, 10, 0, 0, 0, time.Local)
	return func() time.Time { return at }
}
