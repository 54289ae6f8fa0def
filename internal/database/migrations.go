package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeAccountEmails = "2026-09-14_normalize_account_emails"
	migrationTrimAttendancePersons  = "2026-09-21_trim_attendance_person_ids"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationNormalizeAccountEmails, apply: normalizeAccountEmails},
		{name: migrationTrimAttendancePersons, apply: trimAttendancePersonIDs},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		txErr := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if txErr != nil {
			return txErr
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeAccountEmails lower-cases emails stored before login lookups became case-insensitive.
func normalizeAccountEmails(db *gorm.DB) error {
	return db.Model(&users.Account{}).
		Where("email <> lower(trim(email))").
		Update("email", gorm.Expr("lower(trim(email))")).Error
}

func trimAttendancePersonIDs(db *gorm.DB) error {
	return db.Model(&attendance.StoredEvent{}).
		Where("person_id <> trim(person_id)").
		Update("person_id", gorm.Expr("trim(person_id)")).Error
}
