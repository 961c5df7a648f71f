package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 15 * time.Minute
	issuer          = "drwatch"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoOperators        = errors.New("auth enabled but no operators configured")
)

// Config lists the operators allowed to answer the confirmation prompt.
// Operators maps a username to a bcrypt hash (see HashPassword).
type Config struct {
	Enabled   bool
	Operators map[string]string
	JWTSecret string
	TokenTTL  time.Duration
}

// Token is a bearer token issued to an authenticated operator.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Service checks operator credentials and signs tokens.
type Service struct {
	operators map[string][]byte
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

// New returns nil when auth is disabled; a nil *Service lets every request through.
func New(cfg Config) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Operators) == 0 {
		return nil, ErrNoOperators
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, errors.New("jwt_secret must be at least 16 characters")
	}
	s := &Service{
		operators: make(map[string][]byte, len(cfg.Operators)),
		secret:    []byte(cfg.JWTSecret),
		ttl:       cfg.TokenTTL,
		now:       time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	for name, hash := range cfg.Operators {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("operator name must not be empty")
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("operator %s: password is not a bcrypt hash", name)
		}
		s.operators[name] = []byte(hash)
	}
	return s, nil
}

// HashPassword produces the value to put in the operators table.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword returns the operator name on success.
func (s *Service) CheckPassword(username, password string) (string, error) {
	hash, ok := s.operators[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// Issue signs a token for operator.
func (s *Service) Issue(operator string) (Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	c := claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Type: "Bearer", Value: signed, ExpiresAt: exp}, nil
}

// Verify parses a bearer token and returns its operator.
func (s *Service) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidCredentials
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCredentials
	}
	// operator may have been removed since the token was issued
	if _, ok := s.operators[c.Operator]; !ok {
		return "", ErrInvalidCredentials
	}
	if c.Subject != c.Operator {
		return "", ErrInvalidCredentials
	}
	return c.Operator, nil
}
