// Package attendance records gate and classroom scans.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "attendance.service.new"
	opAppend     = "attendance.append"
	opList       = "attendance.list"

	// GateRuleReason is the user-facing explanation for ErrGateEntryMissing.
	GateRuleReason = "Gate entry not found for today"

	// ListLimit bounds the listing to the most recent events.
	ListLimit = 200
)

// EventType distinguishes the two scan points.
type EventType string

const (
	// EventGate is a campus entry scan.
	EventGate EventType = "gate"
	// EventClassroom is an in-class presence scan.
	EventClassroom EventType = "classroom"
)

var (
	// ErrGateEntryMissing rejects a classroom scan without a same-day gate scan.
	ErrGateEntryMissing = errors.New("attendance: gate entry not found for today")
	// ErrInvalidEvent indicates an event that failed validation.
	ErrInvalidEvent = errors.New("attendance: invalid event")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// Event is one scan.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	PersonID   string    `json:"personId"`
	PersonName string    `json:"personName,omitempty"`
	ClassCode  string    `json:"classCode,omitempty"`
	FacultyID  string    `json:"facultyId,omitempty"`
	ScannedAt  time.Time `json:"scannedAt"`
}

// Validate checks the type and person id.
func (e Event) Validate() error {
	if e.Type != EventGate && e.Type != EventClassroom {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if strings.TrimSpace(e.PersonID) == "" {
		return fmt.Errorf("%w: person id is required", ErrInvalidEvent)
	}
	return nil
}

// StoredEvent is the persisted form of an Event.
type StoredEvent struct {
	EventID    string    `gorm:"column:event_id;primaryKey;size:190"`
	Type       string    `gorm:"column:type;size:32;not null;index:idx_attendance_person_day,priority:2"`
	PersonID   string    `gorm:"column:person_id;size:190;not null;index:idx_attendance_person_day,priority:1"`
	PersonName string    `gorm:"column:person_name"`
	ClassCode  string    `gorm:"column:class_code"`
	FacultyID  string    `gorm:"column:faculty_id"`
	ScannedAt  time.Time `gorm:"column:scanned_at;not null;index:idx_attendance_person_day,priority:3"`
}

// TableName overrides the default gorm table name.
func (StoredEvent) TableName() string {
	return "attendance_events"
}

// Config wires the attendance service.
type Config struct {
	Database   *gorm.DB
	IDProvider cards.IDProvider
	Clock      func() time.Time
	// Location defines the calendar day used by the gate rule. Defaults to time.Local.
	Location *time.Location
	Logger   *zap.Logger
}

// Service appends and lists scans.
type Service struct {
	db         *gorm.DB
	idProvider cards.IDProvider
	clock      func() time.Time
	location   *time.Location
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, location: location, logger: logger}, nil
}

// Append records the scan at the current time. A classroom scan is accepted only
// when the same person has a gate scan on the same calendar day.
func (s *Service) Append(ctx context.Context, event Event) (Event, error) {
	event.PersonID = strings.TrimSpace(event.PersonID)
	if err := event.Validate(); err != nil {
		return Event{}, serviceerr.New(opAppend, "invalid_event", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAppend, "id_generation_failed", err)
		return Event{}, serviceerr.New(opAppend, "id_generation_failed", err)
	}
	event.ID = id
	event.ScannedAt = s.clock().UTC()

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if event.Type == EventClassroom {
			start, end := s.dayBounds(event.ScannedAt)
			var gateCount int64
			err := tx.Model(&StoredEvent{}).
				Where("person_id = ? AND type = ? AND scanned_at >= ? AND scanned_at < ?", event.PersonID, string(EventGate), start, end).
				Count(&gateCount).Error
			if err != nil {
				s.logError(opAppend, "query_failed", err, zap.String("person_id", event.PersonID))
				return serviceerr.New(opAppend, "query_failed", err)
			}
			if gateCount == 0 {
				return serviceerr.New(opAppend, "gate_missing", ErrGateEntryMissing)
			}
		}
		record := StoredEvent{
			EventID:    event.ID,
			Type:       string(event.Type),
			PersonID:   event.PersonID,
			PersonName: event.PersonName,
			ClassCode:  event.ClassCode,
			FacultyID:  event.FacultyID,
			ScannedAt:  event.ScannedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opAppend, "insert_failed", err, zap.String("event_id", event.ID))
			return serviceerr.New(opAppend, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Event{}, txErr
	}
	return event, nil
}

// List returns the most recent events, newest first.
func (s *Service) List(ctx context.Context) ([]Event, error) {
	var records []StoredEvent
	err := s.db.WithContext(ctx).
		Order("scanned_at DESC").
		Order("event_id DESC").
		Limit(ListLimit).
		Find(&records).Error
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	events := make([]Event, 0, len(records))
	for _, record := range records {
		events = append(events, Event{
			ID:         record.EventID,
			Type:       EventType(record.Type),
			PersonID:   record.PersonID,
			PersonName: record.PersonName,
			ClassCode:  record.ClassCode,
			FacultyID:  record.FacultyID,
			ScannedAt:  record.ScannedAt.UTC(),
		})
	}
	return events, nil
}

// dayBounds returns the UTC instants delimiting the calendar day of moment in the service location.
func (s *Service) dayBounds(moment time.Time) (time.Time, time.Time) {
	local := moment.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("attendance service error", attrs...)
}
