package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"algoedge.xyz/alarm-relay-service/pkg/alarm"
	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/db"
	alarmHttp "algoedge.xyz/alarm-relay-service/pkg/http"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/maintain"
	"algoedge.xyz/alarm-relay-service/pkg/mq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	var dbInstance *db.DB
	dbType := common.GetenvStr(common.EnvKeyDBType, "file")
	switch dbType {
	case "file":
		dbInstance = db.GetInstance(db.UseSqliteDialector())
	case "memory":
		dbInstance = db.GetInstance(db.UseMemorySqliteDialector())
	default:
		log.Fatal("Unknown " + common.EnvKeyDBType + ": " + dbType)
	}

	logger := common.GetLogger()

	staticDir := common.GetenvStr(common.EnvKeyStaticDir, "static")
	store := imagestore.New(staticDir, common.GetenvStr(common.EnvKeyImagePublicBase, ""))

	alarmCore := alarm.Alarm{
		Db: *dbInstance,
		Dedup: alarm.NewDedupCache(alarm.DedupConfig{
			Window: time.Duration(common.GetenvInt(common.EnvKeyDedupWindowSec, 10)) * time.Second,
		}),
		Images:  store,
		Senders: alarm.NewRobotCache(dbInstance, 10*time.Second),
		Cfg: alarm.Config{
			AppName:               common.GetenvStr(common.EnvKeyAppName, "alarm-relay"),
			DeviceForwardDefault:  common.GetenvBool(common.EnvKeyDeviceForwardDefault, true),
			ChannelForwardDefault: common.GetenvBool(common.EnvKeyChannelForwardDefault, false),
			AtUserIDs:             common.GetenvCSV(common.EnvKeyDingAtUserIDs),
			AtMobiles:             common.GetenvCSV(common.EnvKeyDingAtMobiles),
		},
	}
	alarmCore.WithServices(alarm.ServiceOpts{
		Ingest:   alarmCore.GetIIngest(),
		Registry: alarmCore.GetIRegistry(),
		Webhooks: alarmCore.GetIWebhookAdmin(),
		History:  alarmCore.GetIHistory(),
	})

	reconciler := &maintain.Reconciler{
		Db:      dbInstance,
		Store:   store,
		Broken:  maintain.BrokenRefPolicy(common.GetenvStr(common.EnvKeyBrokenRefPolicy, string(maintain.BrokenRefDeleteRecord))),
		Orphan:  maintain.OrphanFilePolicy(common.GetenvStr(common.EnvKeyOrphanFilePolicy, string(maintain.OrphanFileDelete))),
		MaxRefs: common.GetenvInt(common.EnvKeyReconcileMaxRefs, 500000),
	}
	sweeper := &maintain.Sweeper{
		Db:   dbInstance,
		Root: store.Root(),
		Cfg: maintain.RetentionConfig{
			SnapRetainDays: common.GetenvInt(common.EnvKeySnapRetainDays, 0),
			SnapMaxBytes:   int64(common.GetenvFloat(common.EnvKeySnapMaxGB, 0) * (1 << 30)),
			DBRetainDays:   common.GetenvInt(common.EnvKeyDBRetainDays, 0),
			DBMaxRows:      int64(common.GetenvInt(common.EnvKeyDBMaxRows, 0)),
			Vacuum:         common.GetenvBool(common.EnvKeyDBVacuum, false),
		},
	}
	scheduler := &maintain.Scheduler{
		Sweeper:        sweeper,
		Reconciler:     reconciler,
		CleanAt:        common.GetenvStr(common.EnvKeyCleanAt, ""),
		SweepEvery:     time.Duration(common.GetenvInt(common.EnvKeyDBSweepSec, 0)) * time.Second,
		ReconcileDaily: common.GetenvBool(common.EnvKeyReconcileDaily, false),
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if amqpURL := common.GetenvStr(common.EnvKeyAMQPURL, ""); amqpURL != "" {
		consumer, err := mq.NewConsumer(mq.ConsumerConfig{
			URL:     amqpURL,
			Queue:   common.GetenvStr(common.EnvKeyAMQPQueue, "alarm.events"),
			Handler: mq.IngestHandler(alarmCore.Ingest),
		})
		if err != nil {
			log.Fatalf("amqp consumer setup failed: %v", err)
		}
		defer consumer.Close()
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("amqp consumer start failed: %v", err)
		}
	}

	defaultRate := common.GetenvFloat(common.EnvKeyDefaultRate, 10)
	defaultBurst := common.GetenvInt(common.EnvKeyDefaultBurst, 20)

	httpHostPort := strings.TrimSpace(common.GetenvStr(common.EnvKeyHTTPHostPort, ":1080"))

	rs := &alarmHttp.RestfulServer{
		Server:           gin.Default(),
		Alarm:            &alarmCore,
		RateLimiterStore: alarm.NewRateLimiterStore(rate.Limit(defaultRate), defaultBurst),
		AuthToken:        common.GetenvStr(common.EnvKeyAuthToken, ""),
		Reconciler:       reconciler,
		Sweeper:          sweeper,
		StaticDir:        staticDir,
	}
	rs.Setup()

	logger.Info("http server created with:",
		zap.Float64("default_rate", defaultRate),
		zap.Int("default_burst", defaultBurst))

	logger.Info("Starting HTTP server on: " + httpHostPort)
	if err := rs.Server.Run(httpHostPort); err != nil {
		log.Fatalf("http server failed to serve: %v", err)
	}
}
