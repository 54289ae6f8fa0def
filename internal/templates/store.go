package templates

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opStoreNew    = "templates.store.new"
	opStoreList   = "templates.list"
	opStoreGet    = "templates.get"
	opStoreCreate = "templates.create"
	opStoreUpdate = "templates.update"
	opStoreDelete = "templates.delete"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// StoredTemplate is the persisted form of a user-defined template.
type StoredTemplate struct {
	TemplateID     string `gorm:"column:template_id;primaryKey;size:190"`
	OwnerID        string `gorm:"column:owner_id;size:190;index"`
	Name           string `gorm:"column:name;not null"`
	ColorsJSON     string `gorm:"column:colors_json;type:text;not null"`
	FrontJSON      string `gorm:"column:front_json;type:text"`
	BackJSON       string `gorm:"column:back_json;type:text"`
	BackgroundJSON string `gorm:"column:background_json;type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName overrides the default gorm table name.
func (StoredTemplate) TableName() string {
	return "card_templates"
}

// StoreConfig wires the gorm-backed template store.
type StoreConfig struct {
	Database   *gorm.DB
	IDProvider cards.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store persists user-defined templates.
type Store struct {
	db         *gorm.DB
	idProvider cards.IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewStore validates the configuration and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// List returns every stored template ordered by name.
func (s *Store) List(ctx context.Context) ([]Template, error) {
	var records []StoredTemplate
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		s.logError(opStoreList, "query_failed", err)
		return nil, serviceerr.New(opStoreList, "query_failed", err)
	}
	templates := make([]Template, 0, len(records))
	for _, record := range records {
		template, err := decodeRecord(record)
		if err != nil {
			s.logError(opStoreList, "decode_failed", err, zap.String("template_id", record.TemplateID))
			return nil, serviceerr.New(opStoreList, "decode_failed", err)
		}
		templates = append(templates, template)
	}
	return templates, nil
}

// Get loads a template by id.
func (s *Store) Get(ctx context.Context, id string) (Template, error) {
	record, err := s.load(ctx, s.db, opStoreGet, id)
	if err != nil {
		return Template{}, err
	}
	template, err := decodeRecord(record)
	if err != nil {
		s.logError(opStoreGet, "decode_failed", err, zap.String("template_id", id))
		return Template{}, serviceerr.New(opStoreGet, "decode_failed", err)
	}
	return template, nil
}

// Create stores a new template and assigns an id when none is given.
func (s *Store) Create(ctx context.Context, template Template) (Template, error) {
	if err := template.Validate(); err != nil {
		return Template{}, serviceerr.New(opStoreCreate, "invalid_template", err)
	}
	if strings.TrimSpace(template.ID) == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opStoreCreate, "id_generation_failed", err)
			return Template{}, serviceerr.New(opStoreCreate, "id_generation_failed", err)
		}
		template.ID = id
	}
	now := s.clock().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now
	template.BuiltIn = false

	record, err := encodeTemplate(template)
	if err != nil {
		return Template{}, serviceerr.New(opStoreCreate, "encode_failed", err)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opStoreCreate, "insert_failed", err, zap.String("template_id", template.ID))
		return Template{}, serviceerr.New(opStoreCreate, "insert_failed", err)
	}
	template.generator = standardLayout
	return template, nil
}

// Update applies the patch to a stored template.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Template, error) {
	var updated Template
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.load(ctx, tx, opStoreUpdate, id)
		if err != nil {
			return err
		}
		current, err := decodeRecord(record)
		if err != nil {
			return serviceerr.New(opStoreUpdate, "decode_failed", err)
		}
		updated = patch.Apply(current)
		if err := updated.Validate(); err != nil {
			return serviceerr.New(opStoreUpdate, "invalid_template", err)
		}
		updated.UpdatedAt = s.clock().UTC()
		next, err := encodeTemplate(updated)
		if err != nil {
			return serviceerr.New(opStoreUpdate, "encode_failed", err)
		}
		if err := tx.Save(&next).Error; err != nil {
			s.logError(opStoreUpdate, "save_failed", err, zap.String("template_id", id))
			return serviceerr.New(opStoreUpdate, "save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Template{}, txErr
	}
	return updated, nil
}

// Delete removes a stored template.
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("template_id = ?", id).Delete(&StoredTemplate{})
	if result.Error != nil {
		s.logError(opStoreDelete, "delete_failed", result.Error, zap.String("template_id", id))
		return serviceerr.New(opStoreDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return serviceerr.New(opStoreDelete, "not_found", ErrTemplateNotFound)
	}
	return nil
}

func (s *Store) load(ctx context.Context, db *gorm.DB, operation, id string) (StoredTemplate, error) {
	var record StoredTemplate
	err := db.WithContext(ctx).Where("template_id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoredTemplate{}, serviceerr.New(operation, "not_found", ErrTemplateNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("template_id", id))
		return StoredTemplate{}, serviceerr.New(operation, "query_failed", err)
	}
	return record, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("templates store error", attrs...)
}

func encodeTemplate(template Template) (StoredTemplate, error) {
	colors, err := json.Marshal(template.Colors)
	if err != nil {
		return StoredTemplate{}, err
	}
	record := StoredTemplate{
		TemplateID: template.ID,
		OwnerID:    template.OwnerID,
		Name:       strings.TrimSpace(template.Name),
		ColorsJSON: string(colors),
		CreatedAt:  template.CreatedAt,
		UpdatedAt:  template.UpdatedAt,
	}
	if record.FrontJSON, err = encodeOptional(template.Front); err != nil {
		return StoredTemplate{}, err
	}
	if record.BackJSON, err = encodeOptional(template.Back); err != nil {
		return StoredTemplate{}, err
	}
	if record.BackgroundJSON, err = encodeOptional(template.MainBackground); err != nil {
		return StoredTemplate{}, err
	}
	return record, nil
}

func encodeOptional[T any](value *T) (string, error) {
	if value == nil {
		return "", nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeOptional[T any](payload string) (*T, error) {
	if payload == "" {
		return nil, nil
	}
	var value T
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

func decodeRecord(record StoredTemplate) (Template, error) {
	template := Template{
		ID:        record.TemplateID,
		OwnerID:   record.OwnerID,
		Name:      record.Name,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		generator: standardLayout,
	}
	if err := json.Unmarshal([]byte(record.ColorsJSON), &template.Colors); err != nil {
		return Template{}, err
	}
	var err error
	if template.Front, err = decodeOptional[SideLayout](record.FrontJSON); err != nil {
		return Template{}, err
	}
	if template.Back, err = decodeOptional[SideLayout](record.BackJSON); err != nil {
		return Template{}, err
	}
	if template.MainBackground, err = decodeOptional[cards.Background](record.BackgroundJSON); err != nil {
		return Template{}, err
	}
	return template, nil
}
