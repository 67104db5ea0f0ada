package utils

import (
	"errors" // Error construction
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// AttachmentLinkTTL is how long a signed attachment link stays usable
const AttachmentLinkTTL = 10 * time.Minute

// ErrInvalidLink is returned for tampered, expired or foreign attachment links
var ErrInvalidLink = errors.New("invalid attachment link")

// AttachmentClaims binds a link to one attachment and the viewer it was issued to
type AttachmentClaims struct {
	AttachmentID string `json:"aid"` // Attachment the link opens
	QuestionID   uint   `json:"qid"` // Question owning the attachment
	ViewerID     int64  `json:"vid"` // Telegram id the link was issued to
	jwt.RegisteredClaims
}

// GenerateAttachmentToken signs a short-lived link for an attachment the viewer was allowed to see
func GenerateAttachmentToken(attachmentID string, questionID uint, viewerID int64, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("attachment secret is not configured")
	}
	claims := AttachmentClaims{
		AttachmentID: attachmentID,
		QuestionID:   questionID,
		ViewerID:     viewerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(AttachmentLinkTTL)), // Token expires quickly
			IssuedAt:  jwt.NewNumericDate(now),                        // Issued at current time
			Subject:   "attachment",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAttachmentToken parses and validates an attachment link
func ParseAttachmentToken(tokenStr, secret string) (*AttachmentClaims, error) {
	if secret == "" {
		return nil, ErrInvalidLink
	}
	token, err := jwt.ParseWithClaims(tokenStr, &AttachmentClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject("attachment"))
	if err != nil {
		return nil, ErrInvalidLink
	}
	if claims, ok := token.Claims.(*AttachmentClaims); ok && token.Valid && claims.AttachmentID != "" {
		return claims, nil
	}
	return nil, ErrInvalidLink
}
