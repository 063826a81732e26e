package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
	"github.com/latchkey-auth/latchkey/internal/services"
	pkghttp "github.com/latchkey-auth/latchkey/pkg/http"
	pkglogger "github.com/latchkey-auth/latchkey/pkg/logger"
)

// TwoFactorHandler handles the two-factor settings endpoints. The account
// identity always comes from the validated token claims, never from the
// request body.
type TwoFactorHandler struct {
	twoFactorService *services.TwoFactorService
	auditLogger      *pkglogger.AuditLogger
	ipConfig         *pkghttp.IPConfig
	logger           *slog.Logger
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(
	twoFactorService *services.TwoFactorService,
	auditLogger *pkglogger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
		auditLogger:      auditLogger,
		ipConfig:         ipConfig,
		logger:           logger,
	}
}

// Status handles GET /2fa. Strictly read-only: it never stages a secret.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.twoFactorService.Status(r.Context(), account.AccountID)
	if err != nil {
		h.writeServiceError(w, account.AccountID, err)
		return
	}

	response := TwoFactorStatusResponse{
		State:    string(status.State),
		Enforced: status.Enforced,
	}
	if status.URI != "" {
		response.OtpauthURI = status.URI
		if qr, err := renderQRDataURL(status.URI); err != nil {
			h.logger.Error("failed to render QR code", slog.Any("error", err))
		} else {
			response.QRCode = qr
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// BeginEnrollment handles POST /2fa/setup. An explicit command: calling
// it again while pending rotates to a fresh secret.
func (h *TwoFactorHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	setup, err := h.twoFactorService.BeginEnrollment(r.Context(), account.AccountID)
	if err != nil {
		h.audit(r, pkglogger.EventEnrollmentStarted, account.AccountID, false, failureReason(err))
		h.writeServiceError(w, account.AccountID, err)
		return
	}

	h.audit(r, pkglogger.EventEnrollmentStarted, account.AccountID, true, "")

	response := BeginEnrollmentResponse{
		Secret:     setup.Secret,
		OtpauthURI: setup.URI,
	}
	if qr, err := renderQRDataURL(setup.URI); err != nil {
		h.logger.Error("failed to render QR code", slog.Any("error", err))
	} else {
		response.QRCode = qr
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ConfirmEnrollment handles POST /2fa. Requires the password and a code
// from the freshly paired authenticator.
func (h *TwoFactorHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !isValidCodeFormat(req.Code) {
		pkghttp.WriteFieldError(w, "code_invalid", "code", "Code must be 6 digits")
		return
	}

	err := h.twoFactorService.ConfirmEnrollment(r.Context(), account.AccountID, req.Password, req.Code)
	if err != nil {
		h.audit(r, pkglogger.EventEnrollmentConfirmed, account.AccountID, false, failureReason(err))
		h.writeServiceError(w, account.AccountID, err)
		return
	}

	h.audit(r, pkglogger.EventEnrollmentConfirmed, account.AccountID, true, "")

	response := ConfirmEnrollmentResponse{
		Success: true,
		State:   string(models.TwoFactorActive),
		Message: "Two-factor authentication is now required at sign-in",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Disable handles DELETE /2fa. Requires the password; the code is not
// needed to turn enforcement off.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.twoFactorService.Disable(r.Context(), account.AccountID, req.Password)
	if err != nil {
		h.audit(r, pkglogger.EventTwoFactorDisabled, account.AccountID, false, failureReason(err))
		h.writeServiceError(w, account.AccountID, err)
		return
	}

	h.audit(r, pkglogger.EventTwoFactorDisabled, account.AccountID, true, "")

	response := DisableTwoFactorResponse{
		Success: true,
		State:   string(models.TwoFactorDisabled),
		Message: "Two-factor authentication has been disabled",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// VerifyCode handles POST /2fa/verify, the step-up check for sensitive
// actions in an already authenticated session
func (h *TwoFactorHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !isValidCodeFormat(req.Code) {
		pkghttp.WriteFieldError(w, "code_invalid", "code", "Code must be 6 digits")
		return
	}

	err := h.twoFactorService.VerifyCode(r.Context(), account.AccountID, req.Code)
	if err != nil {
		h.audit(r, pkglogger.EventCodeVerification, account.AccountID, false, failureReason(err))
		h.writeServiceError(w, account.AccountID, err)
		return
	}

	h.audit(r, pkglogger.EventCodeVerification, account.AccountID, true, "")

	response := VerifyCodeResponse{Success: true}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// writeServiceError maps service sentinels onto the HTTP surface. The
// two gate failures stay distinguishable by field; everything else is
// deliberately generic.
func (h *TwoFactorHandler) writeServiceError(w http.ResponseWriter, accountID string, err error) {
	switch {
	case errors.Is(err, models.ErrPasswordInvalid):
		pkghttp.WriteFieldError(w, "password_invalid", "password", "Password is incorrect")
	case errors.Is(err, models.ErrCodeInvalid):
		pkghttp.WriteFieldError(w, "code_invalid", "code", "Authentication code is invalid")
	case errors.Is(err, models.ErrInvalidState):
		pkghttp.WriteError(w, http.StatusConflict, "invalid_state", "Operation not allowed in the current two-factor state")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Settings changed concurrently, please try again")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteUnauthorized(w, "Unauthorized")
	case errors.Is(err, models.ErrSecureRandomUnavailable):
		h.logger.Error("secure random unavailable", slog.String("account_id", accountID), slog.Any("error", err))
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "secret_generation_failed", "Cannot generate a secret right now")
	default:
		h.logger.Error("two-factor operation failed", slog.String("account_id", accountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Operation failed")
	}
}

func (h *TwoFactorHandler) audit(r *http.Request, eventType, accountID string, success bool, reason string) {
	h.auditLogger.LogTwoFactorEvent(pkglogger.AuditEvent{
		EventType:     eventType,
		AccountID:     accountID,
		IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:     hashUserAgent(r.Header.Get("User-Agent")),
		Success:       success,
		FailureReason: reason,
	})
}

// failureReason names an outcome for the audit trail. Secrets and codes
// never appear here.
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrPasswordInvalid):
		return "invalid_password"
	case errors.Is(err, models.ErrCodeInvalid):
		return "invalid_code"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}

// Helper functions

// isValidCodeFormat checks the code's shape before it costs a database
// round trip. Only zero-padded six-digit codes are accepted.
func isValidCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func hashUserAgent(userAgent string) string {
	hash := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(hash[:])
}
