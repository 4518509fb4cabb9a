package models

import "time"

// BudgetPeriod is how often a budget amount resets.
type BudgetPeriod string

const (
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
)

// Valid reports whether p is a known period.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// Budget caps household spending, optionally for a single category.
type Budget struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HouseholdID uint         `gorm:"index;not null"`
	CategoryID  *uint        `gorm:"index"`
	Category    *Category    `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:",omitempty"`
	Amount      float64      `gorm:"type:numeric(12,2);not null"`
	Period      BudgetPeriod `gorm:"size:16;not null;default:monthly"`
	StartDate   time.Time    `gorm:"not null"`
	EndDate     *time.Time
	IsActive    bool `gorm:"default:true;not null"`
}
