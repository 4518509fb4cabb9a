package process

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"homeledger/models"
	"homeledger/pkg/ocr"
)

// GormStore saves ingested receipts for one user. Known image URLs are
// preloaded so repeated scans do not query per file.
type GormStore struct {
	db     *gorm.DB
	userID uint

	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewGormStore resolves the owner by email and preloads their receipt images.
func NewGormStore(ctx context.Context, db *gorm.DB, email string) (*GormStore, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user %q: %w", email, err)
	}
	var urls []string
	if err := db.WithContext(ctx).Model(&models.Receipt{}).Where("user_id = ?", user.ID).Pluck("image_url", &urls).Error; err != nil {
		return nil, fmt.Errorf("preload receipts: %w", err)
	}
	s := &GormStore{db: db, userID: user.ID, seen: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		s.seen[u] = struct{}{}
	}
	return s, nil
}

// Known returns the number of preloaded or saved image URLs.
func (s *GormStore) Known() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

func (s *GormStore) Seen(imageURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[imageURL]
	return ok
}

// Save stores the receipt and its items in one transaction. A concurrent
// insert of the same image is not an error.
func (s *GormStore) Save(ctx context.Context, imageURL string, res *ocr.Result) error {
	date := time.Now()
	if fi, err := os.Stat(imageURL); err == nil {
		date = fi.ModTime()
	}
	r := models.NewReceipt(s.userID, imageURL, date, res)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&r).Error
	})
	if err != nil && !models.IsUniqueViolation(err) {
		return err
	}
	s.mu.Lock()
	s.seen[imageURL] = struct{}{}
	s.mu.Unlock()
	return nil
}
