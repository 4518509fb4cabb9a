package models

import "time"

// CategoryType separates spending from earning categories.
type CategoryType string

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
)

// Category classifies transactions and budgets. A nil HouseholdID marks a
// global category visible to every household.
type Category struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HouseholdID *uint        `gorm:"index;uniqueIndex:idx_household_category"`
	Name        string       `gorm:"size:100;not null;uniqueIndex:idx_household_category"`
	Type        CategoryType `gorm:"size:16;not null;default:expense"`
	Color       string       `gorm:"size:16"`
	Icon        string       `gorm:"size:64"`
}

// DefaultCategories are seeded for every new household.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Groceries", Type: CategoryExpense, Color: "#4caf50", Icon: "cart"},
		{Name: "Rent", Type: CategoryExpense, Color: "#795548", Icon: "home"},
		{Name: "Utilities", Type: CategoryExpense, Color: "#ff9800", Icon: "bolt"},
		{Name: "Transport", Type: CategoryExpense, Color: "#2196f3", Icon: "car"},
		{Name: "Dining Out", Type: CategoryExpense, Color: "#e91e63", Icon: "utensils"},
		{Name: "Savings", Type: CategoryExpense, Color: "#9c27b0", Icon: "piggy-bank"},
		{Name: "Salary", Type: CategoryIncome, Color: "#009688", Icon: "briefcase"},
		{Name: "Interest", Type: CategoryIncome, Color: "#607d8b", Icon: "percent"},
	}
}
