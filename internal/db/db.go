package db

import (
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nisheshk/durable-chatbot/internal/store"
)

// Connect opens the database, sizes the shared connection pool, and migrates
// the two collections. The pool is shared by every conversation, so it is
// bounded (pool size + overflow) with queued acquisition rather than one
// connection per conversation.
func Connect(dsn string, poolSize, maxOverflow int) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db pool: %v", err)
	}
	if poolSize <= 0 {
		poolSize = 20
	}
	if maxOverflow < 0 {
		maxOverflow = 0
	}
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetMaxOpenConns(poolSize + maxOverflow)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := gdb.AutoMigrate(&store.Turn{}, &store.RollingSummary{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
