package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/errors/v2"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/logger"
)

var DB *gorm.DB

func chooseDB(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"):
		// Use PostgreSQL
		return openPostgreSQL(dsn)
	case dsn != "":
		// Use MySQL
		return openMySQL(dsn)
	default:
		// Use SQLite
		return openSQLite()
	}
}

func openPostgreSQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using PostgreSQL as database")
	config.UsingPostgreSQL.Store(true)
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openMySQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using MySQL as database")
	config.UsingMySQL.Store(true)
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func openSQLite() (*gorm.DB, error) {
	logger.Logger.Info("SQL_DSN not set, using SQLite as database")
	config.UsingSQLite.Store(true)
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", config.SQLitePath, config.SQLiteBusyTimeout)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true, // precompile SQL
	})
}

func InitDB() {
	var err error
	DB, err = chooseDB(config.SQLDSN)
	if err != nil {
		logger.Logger.Fatal("failed to initialize database", zap.Error(err))
		return
	}

	if config.DebugSQLEnabled {
		logger.Logger.Debug("debug sql enabled")
		DB = DB.Debug()
	}

	setDBConns(DB)

	logger.Logger.Info("database migration started")
	if err = migrateDB(); err != nil {
		logger.Logger.Fatal("failed to migrate database", zap.Error(err))
		return
	}
	logger.Logger.Info("database migration completed")
}

func migrateDB() error {
	var err error
	if err = DB.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "failed to migrate User")
	}
	if err = DB.AutoMigrate(&Credit{}); err != nil {
		return errors.Wrap(err, "failed to migrate Credit")
	}
	if err = DB.AutoMigrate(&CreditLog{}); err != nil {
		return errors.Wrap(err, "failed to migrate CreditLog")
	}
	if err = DB.AutoMigrate(&TradeTicket{}); err != nil {
		return errors.Wrap(err, "failed to migrate TradeTicket")
	}
	if err = DB.AutoMigrate(&RedemptionCode{}); err != nil {
		return errors.Wrap(err, "failed to migrate RedemptionCode")
	}
	if err = DB.AutoMigrate(&AIModel{}); err != nil {
		return errors.Wrap(err, "failed to migrate AIModel")
	}
	if err = DB.AutoMigrate(&Chat{}); err != nil {
		return errors.Wrap(err, "failed to migrate Chat")
	}
	return nil
}

func setDBConns(db *gorm.DB) *sql.DB {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal("failed to connect database", zap.Error(err))
		return nil
	}

	sqlDB.SetMaxIdleConns(config.SQLMaxIdleConns)
	sqlDB.SetMaxOpenConns(config.SQLMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Second * time.Duration(config.SQLMaxLifetimeSeconds))

	logger.Logger.Info("database connection pool configured",
		zap.Int("max_idle_conns", config.SQLMaxIdleConns),
		zap.Int("max_open_conns", config.SQLMaxOpenConns),
		zap.Int("max_lifetime_secs", config.SQLMaxLifetimeSeconds))

	return sqlDB
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}
