package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/serviceerr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "users.service.new"
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opGet          = "users.get"

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
)

var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrEmailTaken indicates a registration for an existing email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidRegistration indicates a registration that failed validation.
	ErrInvalidRegistration = errors.New("users: invalid registration")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("users: account not found")

	errMissingDatabase = errors.New("database handle is required")
)

// Registration is the input for a new account.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider cards.IDProvider
	Clock      func() time.Time
	// HashCost overrides bcrypt.DefaultCost.
	HashCost int
	Logger   *zap.Logger
}

// Service registers and authenticates accounts.
type Service struct {
	db         *gorm.DB
	idProvider cards.IDProvider
	now        func() time.Time
	cost       int
	logger     *zap.Logger
	cache      sync.Map
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = cards.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, idProvider: idProvider, now: clock, cost: cost, logger: logger}, nil
}

// Register creates an account with a hashed password.
func (s *Service) Register(ctx context.Context, registration Registration) (Account, error) {
	email := normalizeEmail(registration.Email)
	if !strings.Contains(email, "@") {
		return Account{}, serviceerr.New(opRegister, "invalid_email", fmt.Errorf("%w: email %q", ErrInvalidRegistration, registration.Email))
	}
	if len(registration.Password) < MinPasswordLength {
		return Account{}, serviceerr.New(opRegister, "weak_password", fmt.Errorf("%w: password shorter than %d", ErrInvalidRegistration, MinPasswordLength))
	}
	rawRole := registration.Role
	if normalize(rawRole) == "" {
		rawRole = string(RoleStudent)
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Account{}, serviceerr.New(opRegister, "invalid_role", fmt.Errorf("%w: %v", ErrInvalidRegistration, err))
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		s.logError(opRegister, "query_failed", err)
		return Account{}, serviceerr.New(opRegister, "query_failed", err)
	}
	if existing > 0 {
		return Account{}, serviceerr.New(opRegister, "email_taken", ErrEmailTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(registration.Password), s.cost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return Account{}, serviceerr.New(opRegister, "hash_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return Account{}, serviceerr.New(opRegister, "id_generation_failed", err)
	}
	displayName := normalize(registration.DisplayName)
	if displayName == "" {
		displayName = email
	}
	account := Account{
		UserID:       id,
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: string(hash),
		LastSeenAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		s.logError(opRegister, "insert_failed", err, zap.String("email", email))
		return Account{}, serviceerr.New(opRegister, "insert_failed", err)
	}
	s.cache.Store(account.UserID, account)
	return account, nil
}

// Authenticate checks the password for the email.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, serviceerr.New(opAuthenticate, "invalid_credentials", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "query_failed", err)
		return Account{}, serviceerr.New(opAuthenticate, "query_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, serviceerr.New(opAuthenticate, "invalid_credentials", ErrInvalidCredentials)
	}

	account.LastSeenAt = s.now().UTC()
	_ = s.db.WithContext(ctx).Model(&Account{}).
		Where("user_id = ?", account.UserID).
		Update("last_seen_at", account.LastSeenAt).
		Error
	s.cache.Store(account.UserID, account)
	return account, nil
}

// Get returns the account for the id, served from cache after the first lookup.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	if cached, ok := s.cache.Load(userID); ok {
		if account, ok := cached.(Account); ok {
			return account, nil
		}
	}
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, serviceerr.New(opGet, "not_found", ErrAccountNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err)
		return Account{}, serviceerr.New(opGet, "query_failed", err)
	}
	s.cache.Store(account.UserID, account)
	return account, nil
}

// EnsureAccounts registers each account whose email is not yet taken and
// returns the emails that were created.
func (s *Service) EnsureAccounts(ctx context.Context, registrations []Registration) ([]string, error) {
	created := []string{}
	for _, registration := range registrations {
		_, err := s.Register(ctx, registration)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, normalizeEmail(registration.Email))
	}
	return created, nil
}

// DemoAccounts are the seed logins for each role.
func DemoAccounts() []Registration {
	return []Registration{
		{Email: "student@demo.com", Password: "demo123", DisplayName: "Demo Student", Role: string(RoleStudent)},
		{Email: "faculty@demo.com", Password: "demo123", DisplayName: "Demo Faculty", Role: string(RoleFaculty)},
		{Email: "admin@demo.com", Password: "demo123", DisplayName: "Demo Admin", Role: string(RoleAdmin)},
	}
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
	s.logger.Error("users service error", attrs...)
}
