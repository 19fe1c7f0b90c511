// Package identity 访客身份：签发与校验 HS256 JWT，token 中携带显示名。
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer       = "2dg-room"
	MaxNameRunes = 16
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrBadName      = errors.New("name must be 1-16 letters, digits, '_' or '-'")
)

// Claims token 载荷
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Service 签发与校验
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// New secret 为空时生成随机密钥（进程重启后旧 token 失效）
func New(secret string, ttl time.Duration) *Service {
	key := []byte(secret)
	if secret == "" {
		key = []byte(GenerateSecret())
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{key: key, ttl: ttl, now: time.Now}
}

// GenerateSecret 随机 32 字节十六进制密钥
func GenerateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ValidateName 检查显示名
func ValidateName(name string) error {
	n := 0
	for _, r := range name {
		n++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return ErrBadName
		}
	}
	if n == 0 || n > MaxNameRunes {
		return ErrBadName
	}
	return nil
}

// Issue 为指定名称签发 token
func (s *Service) Issue(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	now := s.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strings.ToLower(name),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// IssueGuest 生成随机访客名并签发
func (s *Service) IssueGuest() (token, name string, err error) {
	name = "Guest-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	token, err = s.Issue(name)
	return token, name, err
}

// Verify 校验 token 并返回显示名
func (s *Service) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if err := ValidateName(claims.Name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Name, nil
}
