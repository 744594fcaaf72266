package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyAppName string = "APP_NAME"

	EnvKeyLogDir       string = "LOG_DIR"
	EnvKeyLogMaxSizeMB string = "LOG_MAX_SIZE_MB"

	EnvKeyDBType string = "ALARM_DB_TYPE"
	EnvKeyDBPath string = "ALARM_DB_PATH"

	EnvKeyHTTPHostPort string = "ALARM_HTTP_HOST_PORT"
	EnvKeyAuthToken    string = "AUTH_TOKEN"

	EnvKeyAMQPURL   string = "AMQP_URL"
	EnvKeyAMQPQueue string = "AMQP_QUEUE"

	EnvKeyDedupWindowSec        string = "DEDUP_WINDOW"
	EnvKeyDeviceForwardDefault  string = "DEVICE_FORWARD_DEFAULT"
	EnvKeyChannelForwardDefault string = "CHANNEL_FORWARD_DEFAULT"

	EnvKeyDingAtUserIDs string = "AT_USER_IDS"
	EnvKeyDingAtMobiles string = "AT_MOBILES"

	EnvKeyStaticDir       string = "STATIC_DIR"
	EnvKeyImagePublicBase string = "IMAGE_PUBLIC_BASE"

	EnvKeySnapRetainDays string = "SNAP_RETAIN_DAYS"
	EnvKeySnapMaxGB      string = "SNAP_MAX_GB"
	EnvKeyCleanAt        string = "CLEAN_AT"

	EnvKeyDBRetainDays string = "DB_RETAIN_DAYS"
	EnvKeyDBMaxRows    string = "DB_MAX_ROWS"
	EnvKeyDBSweepSec   string = "DB_SWEEP_SEC"
	EnvKeyDBVacuum     string = "DB_VACUUM"

	EnvKeyReconcileDaily   string = "RECONCILE_DAILY"
	EnvKeyBrokenRefPolicy  string = "BROKEN_REF_POLICY"
	EnvKeyOrphanFilePolicy string = "ORPHAN_FILE_POLICY"
	EnvKeyReconcileMaxRefs string = "RECONCILE_MAX_REFS"

	EnvKeyDefaultRate  string = "ALARM_DEFAULT_RATE"
	EnvKeyDefaultBurst string = "ALARM_DEFAULT_BURST"

	LoggerNameAlarmCore     string = "alarm_core"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameMQConsumer    string = "mq_consumer"
	LoggerNameMaintain      string = "maintain"
	LoggerFieldCategory     string = "category"

	LoggerCategoryIngest    string = "ingest"
	LoggerCategoryRegistry  string = "registry"
	LoggerCategoryDispatch  string = "dispatch"
	LoggerCategoryImage     string = "image"
	LoggerCategoryWebhook   string = "webhook"
	LoggerCategoryHistory   string = "history"
	LoggerCategoryReconcile string = "reconcile"
	LoggerCategoryRetention string = "retention"
)
