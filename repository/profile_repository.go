package repository

import (
	"context"
	"errors"
	"fmt"

	"Tunedrop/model"

	"gorm.io/gorm"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrDuplicateUser   = errors.New("username or email already exists")
)

// ProfileRepository defines the interface for profile data operations.
type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	UsernameByID(ctx context.Context, id string) (string, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

type gormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a ProfileRepository backed by gorm.
func NewGormProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

func (r *gormProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert profile %s: %w", profile.ID, err)
	}
	return nil
}

func (r *gormProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return &p, nil
}

func (r *gormProfileRepository) UsernameByID(ctx context.Context, id string) (string, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Username, nil
}

func (r *gormProfileRepository) exists(ctx context.Context, column, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Profile{}).Where(column+" = ?", value).Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check profile %s: %w", column, err)
	}
	return count > 0, nil
}

func (r *gormProfileRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

func (r *gormProfileRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}
