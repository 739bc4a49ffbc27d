// Package auth — bearer-токен для обращений к бэкенду документов, OCR и загрузки.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// TokenSource отдаёт актуальный access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static — заранее выданный токен (или пустой: без авторизации).
type Static string

func (s Static) Token(context.Context) (string, error) { return string(s), nil }

// PasswordSource логинится через POST /token и кэширует токен.
type PasswordSource struct {
	baseURL  string
	email    string
	password string
	ttl      time.Duration
	httpc    *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewPasswordSource(baseURL, email, password string) *PasswordSource {
	return &PasswordSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		ttl:      30 * time.Minute,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient подменяет http-клиент (тесты, прокси).
func (s *PasswordSource) WithHTTPClient(c *http.Client) *PasswordSource {
	s.httpc = c
	return s
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *PasswordSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry.Add(-time.Minute)) {
		return s.token, nil
	}

	b, _ := json.Marshal(loginRequest{Email: s.email, Password: s.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/token", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("login %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("login decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("login: empty access_token")
	}
	if out.TokenType != "" && !strings.EqualFold(out.TokenType, "bearer") {
		return "", fmt.Errorf("login: unsupported token type %q", out.TokenType)
	}
	s.token = out.AccessToken
	s.expiry = time.Now().Add(s.ttl)
	return s.token, nil
}

// Invalidate сбрасывает кэш; следующий Token() перелогинится.
func (s *PasswordSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Authorize ставит заголовок Authorization, если источник выдал непустой токен.
func Authorize(ctx context.Context, req *http.Request, ts TokenSource) error {
	if ts == nil {
		return nil
	}
	tok, err := ts.Token(ctx)
	if err != nil {
		return err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// Invalidate сбрасывает кэш у источников, которые его держат.
func Invalidate(ts TokenSource) {
	if inv, ok := ts.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}
