// Package account registers users into households and checks their
// credentials.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"homeledger/models"
)

const minPasswordLen = 8

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Registration describes a new user. An empty HouseholdName creates a
// household named after the user.
type Registration struct {
	Email         string
	Password      string
	Name          string
	HouseholdName string
	Role          models.Role
}

// Normalize trims the input and validates email, password and role.
func (r *Registration) Normalize() error {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.HouseholdName = strings.TrimSpace(r.HouseholdName)
	if r.Email == "" {
		return errors.New("email required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("invalid email %q", r.Email)
	}
	if len(r.Password) < minPasswordLen {
		return fmt.Errorf("password too short (min %d)", minPasswordLen)
	}
	if r.Role == "" {
		r.Role = models.RoleUser
	}
	if !r.Role.Valid() {
		return fmt.Errorf("unknown role %q", r.Role)
	}
	if r.Name == "" {
		r.Name = strings.SplitN(r.Email, "@", 2)[0]
	}
	if r.HouseholdName == "" {
		r.HouseholdName = r.Name + "'s household"
	}
	return nil
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the household, its default categories and the user in
// one transaction.
func Register(ctx context.Context, db *gorm.DB, r Registration) (models.User, error) {
	if err := r.Normalize(); err != nil {
		return models.User{}, err
	}
	var existing models.User
	if err := db.WithContext(ctx).Where("email = ?", r.Email).First(&existing).Error; err == nil {
		return models.User{}, ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hh := models.Household{Name: r.HouseholdName}
		if err := tx.Create(&hh).Error; err != nil {
			return fmt.Errorf("create household: %w", err)
		}
		if err := SeedCategories(tx, hh.ID); err != nil {
			return err
		}
		user = models.User{Email: r.Email, Name: r.Name, PasswordHash: hash, Role: r.Role, HouseholdID: &hh.ID}
		return tx.Create(&user).Error
	})
	if err != nil {
		if models.IsUniqueViolation(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return user, nil
}

// SeedCategories adds the default categories a household does not have yet.
func SeedCategories(tx *gorm.DB, householdID uint) error {
	for _, c := range models.DefaultCategories() {
		c.HouseholdID = &householdID
		if err := tx.Where("household_id = ? AND name = ?", householdID, c.Name).FirstOrCreate(&c).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

// Authenticate checks email and password and stamps LastLoginAt.
func Authenticate(ctx context.Context, db *gorm.DB, email, password string) (models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	now := time.Now()
	user.LastLoginAt = &now
	_ = db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error
	return user, nil
}

// ResetPassword replaces the password of the user with email.
func ResetPassword(ctx context.Context, db *gorm.DB, email, password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("password too short (min %d)", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", NormalizeEmail(email)).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q: %w", email, gorm.ErrRecordNotFound)
	}
	return nil
}
