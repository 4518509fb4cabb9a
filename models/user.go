package models

import (
	"time"
)

// User model
type User struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time `gorm:"index"`
	Email        string     `gorm:"size:255;not null;unique"`
	Name         string     `gorm:"size:255"`
	PasswordHash []byte     `gorm:"not null" json:"-"`
	Role         Role       `gorm:"size:16;not null;default:user"`
	HouseholdID  *uint      `gorm:"index"`
	Household    *Household `gorm:"foreignKey:HouseholdID;references:ID" json:",omitempty"`
	LastLoginAt  *time.Time
	Receipts     []Receipt `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:",omitempty"`
}
