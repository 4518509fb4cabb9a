package models

import "time"

// Transaction is a single income or expense entry of a user.
type Transaction struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      uint         `gorm:"index;not null"`
	HouseholdID *uint        `gorm:"index"`
	CategoryID  *uint        `gorm:"index"`
	Category    *Category    `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:",omitempty"`
	Amount      float64      `gorm:"type:numeric(12,2);not null"`
	Type        CategoryType `gorm:"size:16;not null"`
	Date        time.Time    `gorm:"index;not null"`
	Description string       `gorm:"size:512"`
}
