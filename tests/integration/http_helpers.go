package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/config"
	"github.com/latchkey-auth/latchkey/internal/database"
	"github.com/latchkey-auth/latchkey/internal/handlers"
	middlewareCustom "github.com/latchkey-auth/latchkey/internal/middleware"
	"github.com/latchkey-auth/latchkey/internal/models"
	"github.com/latchkey-auth/latchkey/internal/repositories"
	"github.com/latchkey-auth/latchkey/internal/routes"
	"github.com/latchkey-auth/latchkey/internal/services"
	pkgauth "github.com/latchkey-auth/latchkey/pkg/auth"
	pkghttp "github.com/latchkey-auth/latchkey/pkg/http"
	pkglogger "github.com/latchkey-auth/latchkey/pkg/logger"
)

// SentNotification records a security notification for test assertions
type SentNotification struct {
	Event string
	Email string
}

// CapturingNotifier implements services.SecurityNotifier and records every
// notification instead of sending email
type CapturingNotifier struct {
	Sent []SentNotification
	mu   sync.Mutex
}

func (n *CapturingNotifier) TwoFactorEnabled(ctx context.Context, account *models.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{Event: "enabled", Email: account.Email})
	return nil
}

func (n *CapturingNotifier) TwoFactorDisabled(ctx context.Context, account *models.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{Event: "disabled", Email: account.Email})
	return nil
}

// GetLastNotification returns the most recent notification sent
func (n *CapturingNotifier) GetLastNotification() *SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.Sent) == 0 {
		return nil
	}
	return &n.Sent[len(n.Sent)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Notifier *CapturingNotifier
	Config   *config.Config

	// Dependency references for inspection in tests
	TokenManager *auth.TokenManager
	TOTP         *auth.TOTPManager
	Cipher       *auth.SecretCipher
	Records      repositories.TwoFactorRepository
	Accounts     repositories.AccountDirectory

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database and a
// capturing notifier
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry: 15 * time.Minute,
		},
		TwoFactor: config.TwoFactorConfig{
			Issuer:        "LatchkeyTest",
			Period:        30,
			Skew:          1,
			Digits:        6,
			EncryptionKey: []byte("test-2fa-encryption-key-32-bytes"),
			PendingTTL:    24 * time.Hour,
			SweepInterval: 1 * time.Hour,
			BaseDelayMs:   0,
			RandomDelayMs: 0,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	cipher, err := auth.NewSecretCipher(cfg.TwoFactor.EncryptionKey)
	if err != nil {
		panic("test cipher init: " + err.Error())
	}

	recordRepo, accountDirectory := InitializeRepositories(db, cipher)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
	)

	totpManager := auth.NewTOTPManager(auth.TOTPConfig{
		Issuer: cfg.TwoFactor.Issuer,
		Period: cfg.TwoFactor.Period,
		Skew:   cfg.TwoFactor.Skew,
		Digits: cfg.TwoFactor.Digits,
	})

	// No timing padding in tests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	gate := auth.NewGate(pkgauth.NewBcryptVerifier(), totpManager, timingDelay)

	notifier := &CapturingNotifier{}

	twoFactorService := services.NewTwoFactorService(
		recordRepo,
		accountDirectory,
		totpManager,
		gate,
		notifier,
		logger,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, auditLogger, ipConfig, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, twoFactorHandler, tokenManager)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Notifier:     notifier,
		Config:       cfg,
		TokenManager: tokenManager,
		TOTP:         totpManager,
		Cipher:       cipher,
		Records:      recordRepo,
		Accounts:     accountDirectory,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// AccessToken issues a valid access token for the given account
func (ts *TestServer) AccessToken(accountID, email string) (string, error) {
	return ts.TokenManager.GenerateAccessToken(accountID, email)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorResponse extracts the error payload from a failed request
func GetErrorResponse(resp *http.Response) (pkghttp.ErrorResponse, error) {
	defer resp.Body.Close()
	var errResp pkghttp.ErrorResponse
	err := json.NewDecoder(resp.Body).Decode(&errResp)
	return errResp, err
}
