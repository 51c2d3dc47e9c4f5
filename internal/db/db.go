package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a MySQL connection for DSNs like
// app:apppass@tcp(127.0.0.1:3306)/sealchat?charset=utf8mb4&parseTime=true&loc=Local
// and a pure-Go SQLite database for anything else (a file path, optionally "sqlite://"-prefixed).
func Connect(dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if isMySQL(dsn) {
		gdb, err := gorm.Open(mysql.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		return gdb, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	gdb, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return gdb, nil
}

// Migrate creates or upgrades every table. Legacy chat_sessions rows gain an empty mode,
// which the history layer reads as casual.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&learning.Record{},
	)
}

func isMySQL(dsn string) bool {
	return strings.Contains(dsn, "@tcp(") || strings.Contains(dsn, "@unix(")
}
