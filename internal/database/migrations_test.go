package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesLegacyRows(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&users.Account{}, &attendance.StoredEvent{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	account := users.Account{UserID: "user-1", Email: " Admin@Demo.com", Role: users.RoleAdmin, PasswordHash: "x"}
	if err := database.Create(&account).Error; err != nil {
		testContext.Fatalf("failed to insert account: %v", err)
	}
	event := attendance.StoredEvent{EventID: "ev-1", Type: "gate", PersonID: " S1 ", ScannedAt: time.Unix(1700000000, 0).UTC()}
	if err := database.Create(&event).Error; err != nil {
		testContext.Fatalf("failed to insert event: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var storedAccount users.Account
	if err := database.Where("user_id = ?", "user-1").Take(&storedAccount).Error; err != nil {
		testContext.Fatalf("failed to reload account: %v", err)
	}
	if storedAccount.Email != "admin@demo.com" {
		testContext.Fatalf("expected normalized email, got %q", storedAccount.Email)
	}
	var storedEvent attendance.StoredEvent
	if err := database.Where("event_id = ?", "ev-1").Take(&storedEvent).Error; err != nil {
		testContext.Fatalf("failed to reload event: %v", err)
	}
	if storedEvent.PersonID != "S1" {
		testContext.Fatalf("expected trimmed person id, got %q", storedEvent.PersonID)
	}

	var records []migrationRecord
	if err := database.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to list migration records: %v", err)
	}
	if len(records) != len(migrations()) {
		testContext.Fatalf("expected %d migration records, got %d", len(migrations()), len(records))
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}
}

func TestOpenSQLiteMigratesAllModels(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "idcards.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"card_templates", "datasets", "attendance_events", "photos", "user_accounts", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
