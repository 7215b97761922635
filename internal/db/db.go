package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxOpenConns    = 50
	maxIdleConns    = 10
	connMaxLifetime = time.Hour
	pingTimeout     = 2 * time.Second
)

// DB wraps the GORM handle shared by every repository
type DB struct {
	*gorm.DB
}

// Connect opens the PostgreSQL pool. Writes that need atomicity go through InTx,
// so GORM's implicit per-statement transactions are switched off.
func Connect(dsn string) (*DB, error) {
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pool, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetConnMaxLifetime(connMaxLifetime)

	return &DB{DB: gormDB}, nil
}

// InTx runs fn as one atomic unit of work. Any error returned by fn, or a panic, rolls
// back every write made through tx; otherwise the unit is committed.
func (db *DB) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.DB.WithContext(ctx).Transaction(fn)
}

// SupportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE
func SupportsRowLocks(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}

// Ping checks the pool can still reach the server
func (db *DB) Ping(ctx context.Context) error {
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return pool.PingContext(ctx)
}

func (db *DB) Close() error {
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}
