package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scan-licences/internal/model"
)

// AuthService checks operators against the email allow-list.
type AuthService struct{ db *gorm.DB }

func NewAuthService(db *gorm.DB) *AuthService { return &AuthService{db: db} }

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Operator, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var op model.Operator
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s is not allow-listed: %w", email, model.ErrPermissionDenied)
	}
	if err != nil {
		return nil, classify("find operator", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(password)) != nil {
		return nil, fmt.Errorf("wrong password: %w", model.ErrPermissionDenied)
	}
	return &op, nil
}

// IsAllowed reports whether email is still on the allow-list.
func (s *AuthService) IsAllowed(ctx context.Context, email string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int64
	err := s.db.WithContext(ctx).Model(&model.Operator{}).Where("email = ?", normalizeEmail(email)).Count(&n).Error
	if err != nil {
		return false, classify("count operators", err)
	}
	return n > 0, nil
}

// Put adds an operator or resets its password, name and admin flag.
func (s *AuthService) Put(ctx context.Context, email, name, password string, admin bool) (*model.Operator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	op := model.Operator{Email: normalizeEmail(email), Name: name, Password: string(hash), Admin: admin}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "password", "admin"}),
	}).Create(&op).Error
	if err != nil {
		return nil, classify("put operator", err)
	}
	return &op, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
