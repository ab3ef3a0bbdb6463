package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Kirill552/esg-auth/internal/config"
	"github.com/Kirill552/esg-auth/internal/models"
)

// Default siteverify endpoints per provider
const (
	YandexVerifyURL    = "https://smartcaptcha.yandexcloud.net/validate"
	TurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	RecaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
)

const maxProviderResponse = 64 << 10

// CaptchaService verifies challenge tokens against the configured provider.
// It holds no per-call state and never consults the brute-force guard.
type CaptchaService struct {
	cfg       config.CaptchaConfig
	verifyURL string
	client    *http.Client
	logger    *slog.Logger
}

func NewCaptchaService(cfg config.CaptchaConfig, logger *slog.Logger) *CaptchaService {
	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = defaultVerifyURL(cfg.Provider)
	}
	return &CaptchaService{
		cfg:       cfg,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

func defaultVerifyURL(provider string) string {
	switch provider {
	case models.CaptchaProviderTurnstile:
		return TurnstileVerifyURL
	case models.CaptchaProviderRecaptcha:
		return RecaptchaVerifyURL
	default:
		return YandexVerifyURL
	}
}

// ClientConfig is what the browser widget needs. The secret key never leaves
// the server.
func (s *CaptchaService) ClientConfig() (models.CaptchaClientConfig, error) {
	if s.cfg.Provider == "" || s.cfg.SiteKey == "" {
		return models.CaptchaClientConfig{}, fmt.Errorf("captcha provider is not configured")
	}

	settings := map[string]any{
		"language":  s.cfg.Language,
		"theme":     s.cfg.Theme,
		"invisible": s.cfg.Invisible,
	}
	if s.cfg.Provider == models.CaptchaProviderRecaptcha {
		settings["minScore"] = s.cfg.MinScore
	}

	return models.CaptchaClientConfig{
		Provider: s.cfg.Provider,
		SiteKey:  s.cfg.SiteKey,
		Settings: settings,
	}, nil
}

// ValidateForAuth never returns an error. Provider outages and malformed
// replies resolve to an invalid result with a diagnostic reason.
func (s *CaptchaService) ValidateForAuth(ctx context.Context, token, clientIP, action string) models.CaptchaResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonMissingToken}
	}

	var result models.CaptchaResult
	var err error
	switch s.cfg.Provider {
	case models.CaptchaProviderTurnstile:
		result, err = s.verifyTurnstile(ctx, token, clientIP, action)
	case models.CaptchaProviderRecaptcha:
		result, err = s.verifyRecaptcha(ctx, token, clientIP, action)
	default:
		result, err = s.verifyYandex(ctx, token, clientIP)
	}

	if err != nil {
		s.logger.Warn("captcha provider unavailable",
			slog.String("provider", s.cfg.Provider),
			slog.String("error", err.Error()),
		)
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonProviderUnavailable}
	}
	return result
}

type yandexResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *CaptchaService) verifyYandex(ctx context.Context, token, clientIP string) (models.CaptchaResult, error) {
	form := url.Values{
		"secret": {s.cfg.SecretKey},
		"token":  {token},
	}
	if clientIP != "" {
		form.Set("ip", clientIP)
	}

	var resp yandexResponse
	if err := s.postForm(ctx, form, &resp); err != nil {
		return models.CaptchaResult{}, err
	}

	if resp.Status != "ok" {
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonVerificationFailed}, nil
	}
	return models.CaptchaResult{Valid: true}, nil
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

func (s *CaptchaService) verifyTurnstile(ctx context.Context, token, clientIP, action string) (models.CaptchaResult, error) {
	var resp siteverifyResponse
	if err := s.postForm(ctx, siteverifyForm(s.cfg.SecretKey, token, clientIP), &resp); err != nil {
		return models.CaptchaResult{}, err
	}

	if !resp.Success {
		return models.CaptchaResult{Valid: false, Reason: firstErrorCode(resp.ErrorCodes)}, nil
	}
	if action != "" && resp.Action != "" && resp.Action != action {
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonActionMismatch}, nil
	}
	return models.CaptchaResult{Valid: true}, nil
}

func (s *CaptchaService) verifyRecaptcha(ctx context.Context, token, clientIP, action string) (models.CaptchaResult, error) {
	var resp siteverifyResponse
	if err := s.postForm(ctx, siteverifyForm(s.cfg.SecretKey, token, clientIP), &resp); err != nil {
		return models.CaptchaResult{}, err
	}

	if !resp.Success {
		return models.CaptchaResult{Valid: false, Reason: firstErrorCode(resp.ErrorCodes)}, nil
	}
	if action != "" && resp.Action != action {
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonActionMismatch}, nil
	}
	if resp.Score < s.cfg.MinScore {
		return models.CaptchaResult{Valid: false, Reason: models.CaptchaReasonLowScore}, nil
	}
	return models.CaptchaResult{Valid: true}, nil
}

func siteverifyForm(secret, token, clientIP string) url.Values {
	form := url.Values{
		"secret":   {secret},
		"response": {token},
	}
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}
	return form
}

func firstErrorCode(codes []string) string {
	if len(codes) > 0 && codes[0] != "" {
		return codes[0]
	}
	return models.CaptchaReasonVerificationFailed
}

func (s *CaptchaService) postForm(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("captcha provider returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponse))
	if err != nil {
		return fmt.Errorf("read captcha response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse captcha response: %w", err)
	}
	return nil
}
