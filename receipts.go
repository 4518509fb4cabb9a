package main

import (
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"homeledger/models"
	"homeledger/pkg/export"
	"homeledger/pkg/ocr"
	"homeledger/process"
)

const maxStoreLen = 100

// receiptPipeline is the OCR pipeline used by the upload handler.
var receiptPipeline process.Runner

// imageExts maps the accepted upload types to the stored file extension.
var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

type receiptMeta struct {
	Store *string
	Total *float64
	Date  time.Time
}

// parseReceiptMeta validates the optional form fields of an upload.
func parseReceiptMeta(store, total, date string, now time.Time) (receiptMeta, error) {
	var m receiptMeta
	if s := strings.TrimSpace(store); s != "" {
		if utf8.RuneCountInString(s) > maxStoreLen {
			return m, fmt.Errorf("store must be at most %d characters", maxStoreLen)
		}
		m.Store = &s
	}
	if t := strings.TrimSpace(total); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return m, errors.New("total must be numeric")
		}
		if v < 0 {
			return m, errors.New("total must not be negative")
		}
		v = math.Round(v*100) / 100
		m.Total = &v
	}
	m.Date = now
	if d := strings.TrimSpace(date); d != "" {
		parsed, err := time.Parse(time.RFC3339, d)
		if err != nil {
			parsed, err = time.Parse(time.DateOnly, d)
		}
		if err != nil {
			return m, errors.New("date must be RFC3339 or YYYY-MM-DD")
		}
		m.Date = parsed
	}
	return m, nil
}

// detectImageExt sniffs the upload content; the client supplied
// Content-Type is not trusted.
func detectImageExt(fh *multipart.FileHeader) (string, string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", "", err
	}
	for m := mt; m != nil; m = m.Parent() {
		if ext, ok := imageExts[m.String()]; ok {
			return ext, m.String(), nil
		}
	}
	return "", mt.String(), fmt.Errorf("unsupported file type %s", mt.String())
}

func uploadReceiptHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	meta, err := parseReceiptMeta(c.PostForm("store"), c.PostForm("total"), c.PostForm("date"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fh, err := c.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt image missing"})
		return
	}
	if fh.Size > appCfg.UploadMaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file too large (max %d bytes)", appCfg.UploadMaxBytes)})
		return
	}
	ext, mt, err := detectImageExt(fh)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are accepted", "type": mt})
		return
	}

	name := uuid.NewString() + ext
	fullPath := filepath.Join(appCfg.UploadBase, name)
	if err := c.SaveUploadedFile(fh, fullPath); err != nil {
		log.Error().Err(err).Str("path", fullPath).Msg("save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	res, err := receiptPipeline.Run(c.Request.Context(), ocr.Input{ImagePath: fullPath})
	if err != nil {
		log.Error().Err(err).Str("path", fullPath).Msg("receipt pipeline")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "receipt processing failed"})
		return
	}

	imageURL := "/uploads/" + name
	receipt := models.NewReceipt(user.ID, imageURL, meta.Date, res)
	receipt.Store = meta.Store
	receipt.Total = meta.Total
	if err := db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&receipt).Error
	}); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("persist receipt")
		_ = os.Remove(fullPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}

	log.Info().Uint("receipt_id", receipt.ID).Uint("user_id", user.ID).Int("items", len(res.Items)).Bool("timed_out", res.TimedOut).Msg("receipt stored")
	c.JSON(http.StatusCreated, gin.H{
		"receiptId":   receipt.ID,
		"parsedItems": res.Items,
		"imageUrl":    imageURL,
		"rawText":     res.RawText,
		"elapsedMs":   res.ElapsedMs,
	})
}

// listReceiptsHandler lists the caller's receipts with items, newest first.
func listReceiptsHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	var receipts []models.Receipt
	if err := db.WithContext(c.Request.Context()).Preload("Items").
		Where("user_id = ?", cl.UserID).
		Order("date desc, id desc").Limit(limit).
		Find(&receipts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, receipts)
}

func getReceiptHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var r models.Receipt
	if err := db.WithContext(c.Request.Context()).Preload("Items").First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if r.UserID != cl.UserID && cl.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func exportReceiptsHandler(c *gin.Context) {
	cl, _ := claimsFromContext(c)
	q := db.WithContext(c.Request.Context()).Preload("Items").Where("user_id = ?", cl.UserID)
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		q = q.Where("date >= ?", t)
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		q = q.Where("date < ?", t.AddDate(0, 0, 1))
	}
	var receipts []models.Receipt
	if err := q.Order("date asc, id asc").Find(&receipts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	b, err := export.ReceiptsXLSX(receipts)
	if err != nil {
		log.Error().Err(err).Msg("xlsx export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b)
}
