package handlers

// Enrollment DTOs

// BeginEnrollmentResponse hands the staged secret to the client for
// pairing. The secret appears here once; after confirmation it is never
// returned again.
type BeginEnrollmentResponse struct {
	Secret     string `json:"secret"`      // Base32, for manual entry
	OtpauthURI string `json:"otpauth_uri"` // Encoded by the QR code
	QRCode     string `json:"qr_code"`     // PNG data URL
}

// ConfirmEnrollmentRequest carries the proof required to activate the
// pending secret
type ConfirmEnrollmentRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// ConfirmEnrollmentResponse confirms activation
type ConfirmEnrollmentResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Disable DTOs

// DisableTwoFactorRequest requires the password to turn enforcement off
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// DisableTwoFactorResponse confirms deactivation
type DisableTwoFactorResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Status DTOs

// TwoFactorStatusResponse shows the current enrollment state. While a
// confirmation is pending it carries the pairing URI and QR again so the
// settings page can redisplay them.
type TwoFactorStatusResponse struct {
	State      string `json:"state"`
	Enforced   bool   `json:"enforced"`
	OtpauthURI string `json:"otpauth_uri,omitempty"`
	QRCode     string `json:"qr_code,omitempty"`
}

// Verification DTOs

// VerifyCodeRequest carries a code for step-up verification
type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyCodeResponse reports the verification outcome
type VerifyCodeResponse struct {
	Success bool `json:"success"`
}
