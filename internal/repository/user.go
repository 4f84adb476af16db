package repository

import (
	"context" // Request scoped queries
	"errors"  // Error inspection
	"strings" // Email normalisation

	"digital_wallet/internal/domain" // Importing domain models

	"gorm.io/gorm" // GORM ORM library
)

// UserRepository resolves and stores users
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user; duplicates surface as gorm.ErrDuplicatedKey
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = NormalizeEmail(u.Email)
	return r.db.WithContext(ctx).Create(u).Error
}

// FindByEmail returns the active user with the given email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByID returns the user with the given id
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ResolveUserByEmail maps a transfer address to an active user id
func (r *UserRepository) ResolveUserByEmail(ctx context.Context, email string) (uint, error) {
	u, err := r.FindByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if !u.IsActive {
		return 0, ErrUserNotFound
	}
	return u.ID, nil
}

// EmailsByID returns the email of each given user id
func (r *UserRepository) EmailsByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Unscoped().Select("id", "email").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Email
	}
	return out, nil
}
