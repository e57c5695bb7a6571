package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/horoquiz/horoquiz-backend/internal/config"
	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// Common auth errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongSession  = errors.New("token does not belong to this session")
	ErrWrongTokenUse = errors.New("token type does not match this endpoint")
)

// TokenType distinguishes teacher API tokens from per-session host tokens.
type TokenType string

const (
	TokenTypeTeacher TokenType = "teacher"
	// TokenTypeHost is minted when a session is created and presented by
	// the teacher's WebSocket connection at join_room.
	TokenTypeHost TokenType = "host"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int64     `json:"user_id"`
	SessionID int64     `json:"session_id,omitempty"` // Host only
}

// AuthService issues and validates JWTs.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// GenerateTeacherToken creates an API JWT for a teacher.
func (s *AuthService) GenerateTeacherToken(teacherID int64) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(teacherID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeTeacher,
		UserID:    teacherID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// GenerateHostToken creates the per-session credential the teacher's
// live connection presents at join_room. Its lifetime covers the whole
// session rather than the API token expiry.
func (s *AuthService) GenerateHostToken(teacherID, sessionID int64) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(teacherID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.HostTokenTTL)),
		},
		TokenType: TokenTypeHost,
		UserID:    teacherID,
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyHostToken checks that tokenStr is a host token minted for the
// given session. It satisfies the room package's TokenVerifier shape.
func (s *AuthService) VerifyHostToken(tokenStr string, session *model.Session) error {
	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeHost {
		return ErrWrongTokenUse
	}
	if claims.SessionID != session.ID || claims.UserID != session.TeacherID {
		return ErrWrongSession
	}
	return nil
}
