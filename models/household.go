package models

import "time"

// Household groups users that share categories, budgets and transactions.
type Household struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Name       string     `gorm:"size:255;not null"`
	Users      []User     `gorm:"foreignKey:HouseholdID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Categories []Category `gorm:"foreignKey:HouseholdID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
