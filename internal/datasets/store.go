package datasets

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
	opStoreNew = "datasets.store.new"
	opList     = "datasets.list"
	opGet      = "datasets.get"
	opCreate   = "datasets.create"
	opDelete   = "datasets.delete"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// StoredDataset is the persisted form of a dataset.
type StoredDataset struct {
	DatasetID   string `gorm:"column:dataset_id;primaryKey;size:190"`
	OwnerID     string `gorm:"column:owner_id;size:190;index"`
	Name        string `gorm:"column:name;not null"`
	ColumnsJSON string `gorm:"column:columns_json;type:text;not null"`
	RowsJSON    string `gorm:"column:rows_json;type:text;not null"`
	RowCount    int    `gorm:"column:row_count;not null"`
	CreatedAt   time.Time
}

// TableName overrides the default gorm table name.
func (StoredDataset) TableName() string {
	return "datasets"
}

// StoreConfig wires the dataset store.
type StoreConfig struct {
	Database   *gorm.DB
	IDProvider cards.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store persists datasets.
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

// List summarizes every dataset, oldest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var records []StoredDataset
	err := s.db.WithContext(ctx).
		Select("dataset_id", "name", "columns_json", "row_count", "created_at").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	summaries := make([]Summary, 0, len(records))
	for _, record := range records {
		var columns []string
		if err := json.Unmarshal([]byte(record.ColumnsJSON), &columns); err != nil {
			s.logError(opList, "decode_failed", err, zap.String("dataset_id", record.DatasetID))
			return nil, serviceerr.New(opList, "decode_failed", err)
		}
		summaries = append(summaries, Summary{
			ID:        record.DatasetID,
			Name:      record.Name,
			Rows:      record.RowCount,
			Columns:   len(columns),
			CreatedAt: record.CreatedAt,
		})
	}
	return summaries, nil
}

// Get loads a dataset with its rows.
func (s *Store) Get(ctx context.Context, id string) (Dataset, error) {
	var record StoredDataset
	err := s.db.WithContext(ctx).Where("dataset_id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Dataset{}, serviceerr.New(opGet, "not_found", ErrDatasetNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("dataset_id", id))
		return Dataset{}, serviceerr.New(opGet, "query_failed", err)
	}
	dataset := Dataset{ID: record.DatasetID, OwnerID: record.OwnerID, Name: record.Name, CreatedAt: record.CreatedAt}
	if err := json.Unmarshal([]byte(record.ColumnsJSON), &dataset.Columns); err != nil {
		s.logError(opGet, "decode_failed", err, zap.String("dataset_id", id))
		return Dataset{}, serviceerr.New(opGet, "decode_failed", err)
	}
	if err := json.Unmarshal([]byte(record.RowsJSON), &dataset.Rows); err != nil {
		s.logError(opGet, "decode_failed", err, zap.String("dataset_id", id))
		return Dataset{}, serviceerr.New(opGet, "decode_failed", err)
	}
	return dataset, nil
}

// Create stores the dataset and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, dataset Dataset) (Dataset, error) {
	dataset.Name = strings.TrimSpace(dataset.Name)
	if dataset.Rows == nil {
		dataset.Rows = []cards.Record{}
	}
	if err := dataset.Validate(); err != nil {
		return Dataset{}, serviceerr.New(opCreate, "invalid_dataset", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Dataset{}, serviceerr.New(opCreate, "id_generation_failed", err)
	}
	dataset.ID = id
	dataset.CreatedAt = s.clock().UTC()

	columns, err := json.Marshal(dataset.Columns)
	if err != nil {
		return Dataset{}, serviceerr.New(opCreate, "encode_failed", err)
	}
	rows, err := json.Marshal(dataset.Rows)
	if err != nil {
		return Dataset{}, serviceerr.New(opCreate, "encode_failed", err)
	}
	record := StoredDataset{
		DatasetID:   dataset.ID,
		OwnerID:     dataset.OwnerID,
		Name:        dataset.Name,
		ColumnsJSON: string(columns),
		RowsJSON:    string(rows),
		RowCount:    len(dataset.Rows),
		CreatedAt:   dataset.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("dataset_id", id))
		return Dataset{}, serviceerr.New(opCreate, "insert_failed", err)
	}
	return dataset, nil
}

// Delete removes a dataset.
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("dataset_id = ?", id).Delete(&StoredDataset{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("dataset_id", id))
		return serviceerr.New(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return serviceerr.New(opDelete, "not_found", ErrDatasetNotFound)
	}
	return nil
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
	s.logger.Error("datasets store error", attrs...)
}
