// Package dbtest opens isolated in-memory SQLite databases carrying the
// application schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
)

// Open returns a fresh database per call so tests never share rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.EnsureSQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("schema: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in the application db client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(Open(t))
}

// SeedUser inserts a creator. Empty strings are stored as NULL.
func SeedUser(t testing.TB, conn *gorm.DB, name, username, accountID string) models.User {
	t.Helper()
	user := models.User{
		Name:                     nullable(name),
		Username:                 nullable(username),
		StripeConnectedAccountID: nullable(accountID),
	}
	if username != "" {
		email := username + "@example.com"
		user.Email = &email
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
