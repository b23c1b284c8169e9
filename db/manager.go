package db

import (
	"context"
	"fmt"
	"sportsocial/config"
	"sportsocial/models"
	"sportsocial/utils/log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		// нужен для errors.Is(err, gorm.ErrDuplicatedKey) на уникальных индексах
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
}

func ConnectDB() (err error) {
	if ORM != nil {
		log.Log.Info("ORM is already initialized")
		return nil
	}

	var conf = config.AppConfig
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	if conf.Databases.Master.Host == "" {
		return fmt.Errorf("Master database configuration is missing")
	}

	// Initialize the ORM with the master database
	masterDSN := dsnFromConfig(conf.Databases.Master)
	// Init replicas
	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	db, err := gorm.Open(postgres.Open(masterDSN), gormConfig())
	if err != nil {
		return err
	}

	if len(replicaDSNs) > 0 {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return
		}
	}

	if err = Migrate(db); err != nil {
		return err
	}

	ORM = db
	return nil
}

// ConnectSQLite поднимает ORM поверх sqlite файла, используется в тестах
func ConnectSQLite(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	if err = Migrate(db); err != nil {
		return nil, err
	}
	ORM = db
	return db, nil
}

// Migrate создает таблицы и индексы, которые не выражаются тегами gorm
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Post{}, &models.PostTag{}, &models.Like{}, &models.Comment{}, &models.Share{},
		&models.Notification{}, &models.UserProfile{}, &models.UserDevice{}, &models.UserFollow{},
		&models.SectorInterest{}, &models.OtpCode{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return CreatePartialIndexes(db)
}

// GetReadOnlyDB возвращает подключение для чтения (слейвы)
func GetReadOnlyDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Read)
}

// GetWriteDB возвращает подключение для записи (мастер)
func GetWriteDB(ctx context.Context) *gorm.DB {
	return ORM.WithContext(ctx).Clauses(dbresolver.Write)
}
