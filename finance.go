package main

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"homeledger/models"
	"homeledger/pkg/report"
)

// parseDay accepts RFC3339 or YYYY-MM-DD.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// categoryVisible reports whether categoryID is global or belongs to householdID.
func categoryVisible(tx *gorm.DB, categoryID, householdID uint) bool {
	var n int64
	tx.Model(&models.Category{}).
		Where("id = ? AND (household_id IS NULL OR household_id = ?)", categoryID, householdID).
		Count(&n)
	return n > 0
}

func listCategoriesHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	q := db.WithContext(c.Request.Context()).Where("household_id IS NULL OR household_id = ?", cl.HouseholdID)
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	var cats []models.Category
	if err := q.Order("type, name").Find(&cats).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, cats)
}

func createCategoryHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	if cl.HouseholdID == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "user has no household"})
		return
	}
	var req struct {
		Name  string `json:"name" binding:"required,max=100"`
		Type  string `json:"type" binding:"omitempty,oneof=expense income"`
		Color string `json:"color" binding:"max=16"`
		Icon  string `json:"icon" binding:"max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat := models.Category{
		HouseholdID: &cl.HouseholdID,
		Name:        strings.TrimSpace(req.Name),
		Type:        models.CategoryExpense,
		Color:       req.Color,
		Icon:        req.Icon,
	}
	if req.Type != "" {
		cat.Type = models.CategoryType(req.Type)
	}
	if err := db.WithContext(c.Request.Context()).Create(&cat).Error; err != nil {
		if models.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "category already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func listBudgetsHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	q := db.WithContext(c.Request.Context()).Preload("Category").Where("household_id = ?", cl.HouseholdID)
	if c.Query("active") == "true" {
		q = q.Where("is_active = ?", true)
	}
	var budgets []models.Budget
	if err := q.Order("start_date desc, id desc").Find(&budgets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, budgets)
}

func createBudgetHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	if cl.HouseholdID == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "user has no household"})
		return
	}
	if cl.Role == models.RoleUser {
		c.JSON(http.StatusForbidden, gin.H{"error": "only managers and admins can create budgets"})
		return
	}
	var req struct {
		CategoryID *uint   `json:"categoryId"`
		Amount     float64 `json:"amount" binding:"required,gt=0"`
		Period     string  `json:"period"`
		StartDate  string  `json:"startDate" binding:"required"`
		EndDate    string  `json:"endDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b := models.Budget{
		HouseholdID: cl.HouseholdID,
		CategoryID:  req.CategoryID,
		Amount:      roundCents(req.Amount),
		Period:      models.PeriodMonthly,
		IsActive:    true,
	}
	if req.Period != "" {
		b.Period = models.BudgetPeriod(req.Period)
	}
	if !b.Period.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be weekly, monthly, quarterly or yearly"})
		return
	}
	start, err := parseDay(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be RFC3339 or YYYY-MM-DD"})
		return
	}
	b.StartDate = start
	if req.EndDate != "" {
		end, err := parseDay(req.EndDate)
		if err != nil || end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be a date after startDate"})
			return
		}
		b.EndDate = &end
	}
	tx := db.WithContext(c.Request.Context())
	if b.CategoryID != nil && !categoryVisible(tx, *b.CategoryID, cl.HouseholdID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if err := tx.Create(&b).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, b)
}

func listTransactionsHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	q := db.WithContext(c.Request.Context()).Preload("Category").Where("user_id = ?", cl.UserID)
	if from := c.Query("from"); from != "" {
		t, err := parseDay(from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		q = q.Where("date >= ?", t)
	}
	if to := c.Query("to"); to != "" {
		t, err := parseDay(to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		q = q.Where("date <= ?", t)
	}
	if typ := c.Query("type"); typ != "" {
		q = q.Where("type = ?", typ)
	}
	limit := 200
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}
	var txs []models.Transaction
	if err := q.Order("date desc, id desc").Limit(limit).Find(&txs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, txs)
}

func createTransactionHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	var req struct {
		Amount      float64 `json:"amount" binding:"required,gt=0"`
		Type        string  `json:"type" binding:"required,oneof=expense income"`
		CategoryID  *uint   `json:"categoryId"`
		Date        string  `json:"date"`
		Description string  `json:"description" binding:"max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := models.Transaction{
		UserID:      cl.UserID,
		CategoryID:  req.CategoryID,
		Amount:      roundCents(req.Amount),
		Type:        models.CategoryType(req.Type),
		Date:        time.Now(),
		Description: strings.TrimSpace(req.Description),
	}
	if cl.HouseholdID != 0 {
		hid := cl.HouseholdID
		t.HouseholdID = &hid
	}
	if req.Date != "" {
		d, err := parseDay(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be RFC3339 or YYYY-MM-DD"})
			return
		}
		t.Date = d
	}
	tx := db.WithContext(c.Request.Context())
	if t.CategoryID != nil && !categoryVisible(tx, *t.CategoryID, cl.HouseholdID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if err := tx.Create(&t).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, t)
}

func deleteTransactionHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, cl.UserID).Delete(&models.Transaction{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// monthlyReportHandler summarizes ?month=YYYY-MM (default: current UTC month).
func monthlyReportHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	month := c.DefaultQuery("month", time.Now().UTC().Format("2006-01"))
	if _, _, err := report.MonthBounds(month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, _, err := report.Monthly(c.Request.Context(), db, cl.UserID, month)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}
