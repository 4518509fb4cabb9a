package models

import (
	"math"
	"time"

	"gorm.io/gorm"

	"homeledger/pkg/ocr"
)

// Receipt is an uploaded receipt photo with its OCR output.
type Receipt struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       uint          `gorm:"index;not null;uniqueIndex:idx_user_image"`
	Store        *string       `gorm:"size:100"`
	Total        *float64      `gorm:"type:numeric(12,2)"`
	Date         time.Time     `gorm:"index;not null"`
	ImageURL     string        `gorm:"size:512;not null;uniqueIndex:idx_user_image"`
	RawText      string        `gorm:"type:text"`
	OCRElapsedMs int64         `gorm:"not null;default:0"`
	OCRTimedOut  bool          `gorm:"default:false"`
	Items        []ReceiptItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// ReceiptItem is one parsed line item. Total is derived on save.
type ReceiptItem struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	ReceiptID uint    `gorm:"index;not null"`
	Name      string  `gorm:"size:255;not null"`
	Quantity  float64 `gorm:"type:numeric(12,3);not null"`
	UnitPrice float64 `gorm:"type:numeric(12,2);not null"`
	Total     float64 `gorm:"type:numeric(12,2);not null"`
}

// LineTotal is quantity times unit price rounded to cents.
func LineTotal(qty, unitPrice float64) float64 {
	return math.Round(qty*unitPrice*100) / 100
}

func (it *ReceiptItem) BeforeSave(*gorm.DB) error {
	it.Total = LineTotal(it.Quantity, it.UnitPrice)
	return nil
}

// NewReceipt builds a receipt row with its items from a pipeline result.
func NewReceipt(userID uint, imageURL string, date time.Time, res *ocr.Result) Receipt {
	r := Receipt{
		UserID:       userID,
		Date:         date,
		ImageURL:     imageURL,
		RawText:      res.RawText,
		OCRElapsedMs: res.ElapsedMs,
		OCRTimedOut:  res.TimedOut,
		Items:        make([]ReceiptItem, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		r.Items = append(r.Items, ReceiptItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     LineTotal(it.Quantity, it.UnitPrice),
		})
	}
	return r
}
