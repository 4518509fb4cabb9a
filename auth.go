package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"homeledger/models"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

var jwtSecret []byte

// authClaims is what jwtAuthMiddleware puts in the gin context.
type authClaims struct {
	UserID      uint
	Email       string
	Role        models.Role
	HouseholdID uint
}

func issueAccessToken(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(user.ID), 10),
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   time.Now().Add(accessTokenTTL).Unix(),
		"iat":   time.Now().Unix(),
	}
	if user.HouseholdID != nil {
		claims["hid"] = *user.HouseholdID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

func parseAccessToken(tokenString string) (authClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return authClaims{}, fmt.Errorf("invalid token: %w", err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authClaims{}, errors.New("invalid claims")
	}
	sub, _ := mc.GetSubject()
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return authClaims{}, errors.New("invalid subject")
	}
	out := authClaims{UserID: uint(id)}
	out.Email, _ = mc["email"].(string)
	role, _ := mc["role"].(string)
	out.Role = models.Role(role)
	if hid, ok := mc["hid"].(float64); ok && hid > 0 {
		out.HouseholdID = uint(hid)
	}
	return out, nil
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(conn *gorm.DB, userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(token), ExpiresAt: time.Now().Add(refreshTokenTTL)}
	if err := conn.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", hashToken(token)).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
