package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const claimStorageKey = "key"

// Signer mints and verifies time-limited access URLs for stored objects.
// The durable reference persisted with a message is a signed URL; the media
// handler verifies the token and streams the object.
type Signer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

// NewSigner creates a URL signer. baseURL is the public base the media
// endpoint is served under (e.g. "https://inbox.example.com").
func NewSigner(secret string, ttl time.Duration, baseURL string) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SignedURL returns a time-limited URL granting read access to key.
func (s *Signer) SignedURL(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		claimStorageKey: key,
		"iat":           now.Unix(),
		"exp":           now.Add(s.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign media token: %w", err)
	}
	return s.baseURL + "/media?token=" + url.QueryEscape(token), nil
}

// Verify checks a media token and returns the storage key it grants.
func (s *Signer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse media token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid media token")
	}
	key, _ := claims[claimStorageKey].(string)
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("media token has no storage key")
	}
	return key, nil
}
