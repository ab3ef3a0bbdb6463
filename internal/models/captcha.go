package models

// CAPTCHA providers supported by the verifier
const (
	CaptchaProviderYandex    = "yandex"
	CaptchaProviderTurnstile = "turnstile"
	CaptchaProviderRecaptcha = "recaptcha"
)

// Failure reasons surfaced to clients
const (
	CaptchaReasonMissingToken        = "missing_token"
	CaptchaReasonVerificationFailed  = "verification_failed"
	CaptchaReasonProviderUnavailable = "provider_unavailable"
	CaptchaReasonLowScore            = "low_score"
	CaptchaReasonActionMismatch      = "action_mismatch"
)

// CaptchaResult is the outcome of a single token verification
type CaptchaResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CaptchaClientConfig is what the browser widget needs; it never carries secrets
type CaptchaClientConfig struct {
	Provider string         `json:"provider"`
	SiteKey  string         `json:"siteKey"`
	Settings map[string]any `json:"settings"`
}
