package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Psychedelic/terabethia-relayer/config"
)

// NewMysqlDB connects to MySQL and migrates the relay state table.
func NewMysqlDB(cfg config.Database) (*MysqlDB, error) {
	return OpenMysqlDB(fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName))
}

func OpenMysqlDB(dsn string) (*MysqlDB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&StateRecord{}); err != nil {
		return nil, err
	}

	return &MysqlDB{db: db}, nil
}

// Open returns the backend selected by cfg.Kind.
func Open(cfg config.StoreConfig) (IDB, error) {
	switch cfg.Kind {
	case config.StoreDynamoDB:
		return NewDynamoDB(cfg.DynamoDB)
	case config.StoreLevelDB:
		return NewLevelDB(cfg.LevelDB.Dir)
	case config.StoreMysql:
		return NewMysqlDB(cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported store kind: %q", cfg.Kind)
	}
}
