package db

import (
	"fmt"
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	constant "algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

func GetInstance(dialector gorm.Dialector) *DB {
	once.Do(func() {
		var err error
		if instance, err = New(dialector); err != nil {
			log.Fatal("Failed to open database: ", err)
		}
	})
	return instance
}

// New opens an independent connection with migrations applied. Tests that
// need an isolated dataset use this with a named memory dialector.
func New(dialector gorm.Dialector) (*DB, error) {
	var logger = constant.GetLogger()

	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	d := &DB{Conn: conn}

	err = d.Conn.AutoMigrate(
		&models.Device{},
		&models.Channel{},
		&models.ChannelRule{},
		&models.Webhook{},
		&models.ChannelWebhook{},
		&models.Message{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Info("Database migration completed")

	if err := d.Conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable sqlite foreign key support: %w", err)
	}

	if err := d.Conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("set sqlite journal mode: %w", err)
	}

	if err := d.Conn.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
	}

	return d, nil
}

// Vacuum reclaims space after bulk deletes. It can take a while on a large
// file, callers run it only after a rotation actually removed rows.
func (d *DB) Vacuum() error {
	return d.Conn.Exec("VACUUM").Error
}

func UseSqliteDialector() gorm.Dialector {
	var dbPath string
	var found bool
	if dbPath, found = os.LookupEnv(constant.EnvKeyDBPath); !found {
		dbPath = "alarm_relay.db"
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseNamedMemorySqliteDialector keeps separate in-memory datasets apart, so
// tests that delete rows do not trample each other.
func UseNamedMemorySqliteDialector(name string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}
