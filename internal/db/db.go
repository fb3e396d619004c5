package db

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

var ErrNoDSN = errors.New("DATABASE_URL is empty")

// Configured reports whether a database has been configured at all. Without
// one the server runs on the in-memory store.
func Configured() bool {
	return os.Getenv("DATABASE_URL") != ""
}

// Open connects to dsn with the shared logger and pool settings.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	slow := 100 * time.Millisecond
	if ms, err := strconv.Atoi(os.Getenv("DB_SLOW_QUERY_MS")); err == nil && ms > 0 {
		slow = time.Duration(ms) * time.Millisecond
	}

	lg := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: lg,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// Connect opens DATABASE_URL into DB or exits.
func Connect() {
	gdb, err := Open(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	DB = gdb
	log.Println("Connected to database")
}
