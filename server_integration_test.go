package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"homeledger/pkg/config"
	"homeledger/pkg/ocr"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// cannedEngine answers every pass with the same receipt text.
type cannedEngine struct{ text string }

func (e cannedEngine) Open(string) (ocr.Session, error) { return e, nil }
func (e cannedEngine) Recognize(context.Context, string, ocr.Pass) (string, error) {
	return e.text, nil
}
func (e cannedEngine) Close() error { return nil }

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	t.Setenv("UPLOAD_BASE", t.TempDir())
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	appCfg = cfg
	jwtSecret = []byte(cfg.JWTSecret)
	if err := initDB(cfg); err != nil {
		t.Fatalf("initDB: %v", err)
	}
	p, err := ocr.NewPipeline(cfg.OCR(), nil, cannedEngine{text: "Bananas 2 x 0.59\nMilk 2.99\nTOTAL 4.17"})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	receiptPipeline = p

	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(requestLogger(newHTTPMetrics(reg)))
	setupRoutes(r, reg)
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	email := fmt.Sprintf("user-%d@example.com", time.Now().UnixNano())

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"email": email, "password": "pass1234", "household": "Test Home"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate register expected 409 got %d", resp.Code)
	}

	// 2. Login
	loginBody, _ := json.Marshal(map[string]string{"email": strings.ToUpper(email), "password": "pass1234"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	decode(t, resp, &loginResp)
	token, _ := loginResp["token"].(string)
	refresh, _ := loginResp["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("missing tokens in login response: %+v", loginResp)
	}

	// 3. Me
	resp = performRequest(r, http.MethodGet, "/me", nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), email) {
		t.Fatalf("me failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Upload receipt (multipart)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("store", "Walmart")
	_ = mw.WriteField("total", "4.17")
	_ = mw.WriteField("date", "2024-05-02")
	w, _ := mw.CreateFormFile("receipt", "receipt.png")
	_, _ = w.Write(pngBytes(t))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/receipts/upload", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var up struct {
		ReceiptID   uint       `json:"receiptId"`
		ParsedItems []ocr.Item `json:"parsedItems"`
		ImageURL    string     `json:"imageUrl"`
	}
	decode(t, resp, &up)
	if up.ReceiptID == 0 || len(up.ParsedItems) != 2 || up.ParsedItems[0].Name != "Bananas" {
		t.Fatalf("unexpected upload response: %s", resp.Body.String())
	}
	if _, err := os.Stat(filepath.Join(appCfg.UploadBase, filepath.Base(up.ImageURL))); err != nil {
		t.Fatalf("stored image missing: %v", err)
	}

	// 5. Non-image upload is rejected
	buf = &bytes.Buffer{}
	mw = multipart.NewWriter(buf)
	w, _ = mw.CreateFormFile("receipt", "notes.jpg")
	_, _ = w.Write([]byte("plain text pretending to be a jpeg"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/receipts/upload", buf, token, mw.FormDataContentType())
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for text upload got %d", resp.Code)
	}

	// 6. List / get / export receipts
	resp = performRequest(r, http.MethodGet, "/receipts", nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Bananas") {
		t.Fatalf("list receipts failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/receipts/%d", up.ReceiptID), nil, token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("get receipt failed status=%d", resp.Code)
	}
	resp = performRequest(r, http.MethodGet, "/receipts/export.xlsx", nil, token, "")
	if resp.Code != http.StatusOK || resp.Body.Len() == 0 {
		t.Fatalf("export failed status=%d", resp.Code)
	}

	// 7. Categories are seeded for the new household
	resp = performRequest(r, http.MethodGet, "/categories", nil, token, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Groceries") {
		t.Fatalf("categories failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 8. Transactions
	txBody, _ := json.Marshal(map[string]any{"amount": 12.5, "type": "expense", "date": "2024-05-02", "description": "groceries"})
	resp = performRequest(r, http.MethodPost, "/transactions", bytes.NewBuffer(txBody), token, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create transaction failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created struct{ ID uint }
	decode(t, resp, &created)
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.ID), nil, token, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete transaction failed status=%d", resp.Code)
	}
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.ID), nil, token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second delete expected 404 got %d", resp.Code)
	}

	// 9. Plain users cannot create budgets
	budgetBody, _ := json.Marshal(map[string]any{"amount": 400, "startDate": "2024-05-01"})
	resp = performRequest(r, http.MethodPost, "/budgets", bytes.NewBuffer(budgetBody), token, "application/json")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for budget by user got %d", resp.Code)
	}

	// 10. Refresh rotates, revoked token cannot be reused
	rtBody, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rtBody), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("refresh failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rtBody), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token expected 401 got %d", resp.Code)
	}

	// 11. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/receipts", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list receipts got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
