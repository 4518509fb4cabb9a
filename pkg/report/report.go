// Package report summarizes a user's month of receipts and transactions.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"homeledger/models"
)

// CategoryTotal is the summed amount of one category and transaction type.
type CategoryTotal struct {
	Category string              `json:"category"`
	Type     models.CategoryType `json:"type"`
	Amount   float64             `json:"amount"`
	Count    int                 `json:"count"`
}

// Summary is the monthly report of one user.
type Summary struct {
	Month        string          `json:"month"`
	Receipts     int             `json:"receipts"`
	ReceiptItems int             `json:"receiptItems"`
	ReceiptSpend float64         `json:"receiptSpend"`
	Income       float64         `json:"income"`
	Expenses     float64         `json:"expenses"`
	Net          float64         `json:"net"`
	ByCategory   []CategoryTotal `json:"byCategory"`
}

// MonthBounds parses YYYY-MM and returns [start, end) in UTC.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Monthly loads the user's rows for month and summarizes them.
func Monthly(ctx context.Context, db *gorm.DB, userID uint, month string) (Summary, []models.Receipt, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Summary{}, nil, err
	}
	var receipts []models.Receipt
	if err := db.WithContext(ctx).Preload("Items").
		Where("user_id = ? AND date >= ? AND date < ?", userID, start, end).
		Order("date, id").Find(&receipts).Error; err != nil {
		return Summary{}, nil, fmt.Errorf("query receipts: %w", err)
	}
	var txs []models.Transaction
	if err := db.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND date >= ? AND date < ?", userID, start, end).
		Find(&txs).Error; err != nil {
		return Summary{}, nil, fmt.Errorf("query transactions: %w", err)
	}
	return Summarize(month, receipts, txs), receipts, nil
}

// Summarize aggregates rows that are already filtered to one month. A
// receipt's spend is its declared total, or the sum of its items when no
// total was entered.
func Summarize(month string, receipts []models.Receipt, txs []models.Transaction) Summary {
	s := Summary{Month: month, Receipts: len(receipts), ByCategory: []CategoryTotal{}}
	for _, r := range receipts {
		s.ReceiptItems += len(r.Items)
		if r.Total != nil {
			s.ReceiptSpend += *r.Total
			continue
		}
		for _, it := range r.Items {
			s.ReceiptSpend += it.Total
		}
	}

	type key struct {
		name string
		typ  models.CategoryType
	}
	byCat := map[key]*CategoryTotal{}
	for _, t := range txs {
		switch t.Type {
		case models.CategoryIncome:
			s.Income += t.Amount
		default:
			s.Expenses += t.Amount
		}
		name := "Uncategorized"
		if t.Category != nil {
			name = t.Category.Name
		}
		k := key{name, t.Type}
		ct, ok := byCat[k]
		if !ok {
			ct = &CategoryTotal{Category: name, Type: t.Type}
			byCat[k] = ct
		}
		ct.Amount += t.Amount
		ct.Count++
	}
	for _, ct := range byCat {
		ct.Amount = cents(ct.Amount)
		s.ByCategory = append(s.ByCategory, *ct)
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Category < b.Category
	})

	s.ReceiptSpend = cents(s.ReceiptSpend)
	s.Income = cents(s.Income)
	s.Expenses = cents(s.Expenses)
	s.Net = cents(s.Income - s.Expenses)
	return s
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
