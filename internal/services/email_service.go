package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/Kirill552/esg-auth/pkg/logger"
)

// SecurityNotifier tells a user about changes to their second factor
type SecurityNotifier interface {
	NotifyTOTPEnabled(ctx context.Context, email string, at time.Time) error
	NotifyBackupCodesRegenerated(ctx context.Context, email string, at time.Time) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends security notifications through AWS SES
type AWSSESEmailService struct {
	sesClient   sesAPI
	fromAddress string
	supportURL  string
	logger      *slog.Logger
}

func NewAWSSESEmailService(ctx context.Context, region, fromAddress, supportURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESEmailService(ses.NewFromConfig(cfg), fromAddress, supportURL, logger), nil
}

func newSESEmailService(client sesAPI, fromAddress, supportURL string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		supportURL:  supportURL,
		logger:      logger,
	}
}

func (s *AWSSESEmailService) NotifyTOTPEnabled(ctx context.Context, email string, at time.Time) error {
	return s.send(ctx, email,
		"Двухфакторная аутентификация включена",
		fmt.Sprintf("Для вашей учётной записи ESG-Lite включена двухфакторная аутентификация (%s UTC).", at.UTC().Format("02.01.2006 15:04")),
	)
}

func (s *AWSSESEmailService) NotifyBackupCodesRegenerated(ctx context.Context, email string, at time.Time) error {
	return s.send(ctx, email,
		"Резервные коды обновлены",
		fmt.Sprintf("Для вашей учётной записи ESG-Lite созданы новые резервные коды (%s UTC). Прежние неиспользованные коды больше не действуют.", at.UTC().Format("02.01.2006 15:04")),
	)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, message string) error {
	text := fmt.Sprintf("%s\n\nЕсли это были не вы, обратитесь в поддержку: %s\n", message, s.supportURL)
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <p>%s</p>
  <p>Если это были не вы, <a href="%s">обратитесь в поддержку</a>.</p>
</body>
</html>`, message, s.supportURL)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
			},
		},
	}

	out, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	s.logger.Info("security notification sent",
		slog.String("to", logger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// LogNotifier records notifications in the log when email is disabled
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyTOTPEnabled(ctx context.Context, email string, at time.Time) error {
	n.logger.InfoContext(ctx, "email disabled, skipping TOTP enabled notification",
		slog.String("to", logger.SanitizedEmail(email)))
	return nil
}

func (n *LogNotifier) NotifyBackupCodesRegenerated(ctx context.Context, email string, at time.Time) error {
	n.logger.InfoContext(ctx, "email disabled, skipping backup codes notification",
		slog.String("to", logger.SanitizedEmail(email)))
	return nil
}
