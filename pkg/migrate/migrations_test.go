package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/tipjar-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUsersMigrationEnforcesUniqueUsername(t *testing.T) {
	assertContains(t, readMigration(t, "create_users"), []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_users_username ON users (username)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_users_stripe_connected_account_id",
		"DROP TABLE IF EXISTS users",
	})
}

func TestDonationsMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_donations"), []string{
		"CREATE TYPE donation_status AS ENUM ('PENDING', 'PAID', 'CANCELLED')",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE",
		"CHECK (price = amount + fee)",
		"DROP TYPE IF EXISTS donation_status",
	})
}

func TestWebhookInboxMigrationDedupesEvents(t *testing.T) {
	assertContains(t, readMigration(t, "create_stripe_webhook_events"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_stripe_webhook_events_event_id ON stripe_webhook_events (stripe_event_id)",
		"status webhook_event_status NOT NULL DEFAULT 'pending'",
	})
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded(), "migrations"); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	embedded, err := fs.Glob(migrate.Embedded(), "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
}

func TestValidateDirAcceptsMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateDirRejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260301120000_only_up.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "+goose Down") {
		t.Fatalf("expected missing down error, got %v", err)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Donation Notes!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260302093000_add_donation_notes.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsOutOfOrderVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if _, err := migrate.CreateSQLMigration(dir, "first", now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "second", now.Add(-time.Hour)); err == nil {
		t.Fatal("expected ordering error")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now.Add(time.Hour)); err == nil {
		t.Fatal("expected empty name error")
	}
}
