// Package photos keeps uploaded card photos on the local filesystem.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

const (
	opStoreNew = "photos.store.new"
	opUpload   = "photos.upload"
	opList     = "photos.list"
	opResolve  = "photos.resolve"

	// MaxUploadBytes caps a single photo.
	MaxUploadBytes = 5 << 20
)

var (
	// ErrUnsupportedMedia indicates an upload that is not a supported image format.
	ErrUnsupportedMedia = errors.New("photos: unsupported media type")
	// ErrTooLarge indicates an upload above MaxUploadBytes.
	ErrTooLarge = errors.New("photos: upload too large")
	// ErrEmptyUpload indicates an upload without content.
	ErrEmptyUpload = errors.New("photos: empty upload")
	// ErrForeignSource indicates an image source outside the photo base URL.
	ErrForeignSource = errors.New("photos: source is not a stored photo")

	errMissingDatabase = errors.New("database handle is required")
	errMissingDir      = errors.New("photo directory is required")

	allowedMedia = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
)

// Photo describes one stored file.
type Photo struct {
	// Name is the file name given at upload time.
	Name string `json:"name"`
	// File is the stored file name under the photo directory.
	File      string    `json:"file"`
	URL       string    `json:"url"`
	MediaType string    `json:"mediaType"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoredPhoto is the persisted metadata of an upload.
type StoredPhoto struct {
	File      string `gorm:"column:file;primaryKey;size:190"`
	Name      string `gorm:"column:name;not null;index"`
	MediaType string `gorm:"column:media_type;not null"`
	Size      int    `gorm:"column:size;not null"`
	CreatedAt time.Time
}

// TableName overrides the default gorm table name.
func (StoredPhoto) TableName() string {
	return "photos"
}

// Config wires the photo store.
type Config struct {
	Database   *gorm.DB
	Dir        string
	BaseURL    string
	IDProvider cards.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store writes uploads to Dir and serves them under BaseURL.
type Store struct {
	db         *gorm.DB
	dir        string
	baseURL    string
	idProvider cards.IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewStore creates the photo directory when missing.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, serviceerr.New(opStoreNew, "missing_dir", errMissingDir)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, serviceerr.New(opStoreNew, "mkdir_failed", err)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = cards.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := "/" + strings.Trim(strings.TrimSpace(cfg.BaseURL), "/")
	return &Store{
		db:         cfg.Database,
		dir:        cfg.Dir,
		baseURL:    baseURL,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Dir returns the directory holding the stored files.
func (s *Store) Dir() string {
	return s.dir
}

// BaseURL returns the URL prefix photos are served under.
func (s *Store) BaseURL() string {
	return s.baseURL
}

// Upload stores the bytes under a fresh file name and returns its URL.
func (s *Store) Upload(ctx context.Context, name string, data []byte) (Photo, error) {
	if len(data) == 0 {
		return Photo{}, serviceerr.New(opUpload, "empty", ErrEmptyUpload)
	}
	if len(data) > MaxUploadBytes {
		return Photo{}, serviceerr.New(opUpload, "too_large", ErrTooLarge)
	}
	detected := mimetype.Detect(data)
	extension, ok := allowedMedia[detected.String()]
	if !ok {
		return Photo{}, serviceerr.New(opUpload, "unsupported_media", fmt.Errorf("%w: %s", ErrUnsupportedMedia, detected.String()))
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpload, "id_generation_failed", err)
		return Photo{}, serviceerr.New(opUpload, "id_generation_failed", err)
	}

	photo := Photo{
		Name:      filepath.Base(strings.TrimSpace(name)),
		File:      id + extension,
		MediaType: detected.String(),
		Size:      len(data),
		CreatedAt: s.clock().UTC(),
	}
	photo.URL = s.urlFor(photo.File)
	if err := os.WriteFile(filepath.Join(s.dir, photo.File), data, 0o644); err != nil {
		s.logError(opUpload, "write_failed", err, zap.String("file", photo.File))
		return Photo{}, serviceerr.New(opUpload, "write_failed", err)
	}
	record := StoredPhoto{File: photo.File, Name: photo.Name, MediaType: photo.MediaType, Size: photo.Size, CreatedAt: photo.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		_ = os.Remove(filepath.Join(s.dir, photo.File))
		s.logError(opUpload, "insert_failed", err, zap.String("file", photo.File))
		return Photo{}, serviceerr.New(opUpload, "insert_failed", err)
	}
	return photo, nil
}

// List returns every stored photo, oldest first.
func (s *Store) List(ctx context.Context) ([]Photo, error) {
	var records []StoredPhoto
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("file ASC").Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, serviceerr.New(opList, "query_failed", err)
	}
	photos := make([]Photo, 0, len(records))
	for _, record := range records {
		photos = append(photos, Photo{
			Name:      record.Name,
			File:      record.File,
			URL:       s.urlFor(record.File),
			MediaType: record.MediaType,
			Size:      record.Size,
			CreatedAt: record.CreatedAt,
		})
	}
	return photos, nil
}

// Resolve decodes a stored photo addressed by its URL or bare file name.
func (s *Store) Resolve(source string) (image.Image, error) {
	file, err := s.fileFor(source)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return nil, serviceerr.New(opResolve, "read_failed", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, serviceerr.New(opResolve, "decode_failed", err)
	}
	return decoded, nil
}

func (s *Store) urlFor(file string) string {
	return path.Join(s.baseURL, file)
}

func (s *Store) fileFor(source string) (string, error) {
	source = strings.TrimSpace(source)
	prefix := strings.TrimRight(s.baseURL, "/") + "/"
	switch {
	case strings.HasPrefix(source, prefix):
		source = strings.TrimPrefix(source, prefix)
	case strings.ContainsAny(source, "/:\\"):
		return "", serviceerr.New(opResolve, "foreign_source", fmt.Errorf("%w: %s", ErrForeignSource, source))
	}
	if source == "" || source != filepath.Base(source) || source == "." || source == ".." {
		return "", serviceerr.New(opResolve, "foreign_source", fmt.Errorf("%w: %s", ErrForeignSource, source))
	}
	return source, nil
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
	s.logger.Error("photo store error", attrs...)
}
