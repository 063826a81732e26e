package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/latchkey-auth/latchkey/internal/models"
	pkglogger "github.com/latchkey-auth/latchkey/pkg/logger"
)

// SecurityNotifier tells an account owner that their second factor
// changed. Delivery failures never roll back the change that triggered
// them; the caller logs and moves on.
type SecurityNotifier interface {
	TwoFactorEnabled(ctx context.Context, account *models.Account) error
	TwoFactorDisabled(ctx context.Context, account *models.Account) error
}

// SESNotifier sends security notification emails using AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier creates a new AWS SES backed notifier
func NewSESNotifier(region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// TwoFactorEnabled notifies that two-factor authentication was turned on
func (s *SESNotifier) TwoFactorEnabled(ctx context.Context, account *models.Account) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Two-Factor Authentication Enabled</h1>
        </div>
        <div class="content">
            <p>Hi %s,</p>
            <p>Two-factor authentication was just enabled on your account. From now on, signing in requires a code from your authenticator app in addition to your password.</p>
            <div class="warning">
                <strong>Didn't do this?</strong> Someone with access to your password may have enabled it. Reset your password immediately and contact support.
            </div>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, account.Name)

	textBody := fmt.Sprintf(`Two-Factor Authentication Enabled

Hi %s,

Two-factor authentication was just enabled on your account. From now on, signing in requires a code from your authenticator app in addition to your password.

Didn't do this? Someone with access to your password may have enabled it. Reset your password immediately and contact support.

This is an automated message. Please do not reply to this email.
`, account.Name)

	return s.send(ctx, account.Email, "Two-factor authentication enabled", htmlBody, textBody)
}

// TwoFactorDisabled notifies that two-factor authentication was turned off
func (s *SESNotifier) TwoFactorDisabled(ctx context.Context, account *models.Account) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Two-Factor Authentication Disabled</h1>
        </div>
        <div class="content">
            <p>Hi %s,</p>
            <p>Two-factor authentication was just disabled on your account. Signing in now requires only your password.</p>
            <div class="warning">
                <strong>Didn't do this?</strong> Reset your password immediately, re-enable two-factor authentication, and contact support.
            </div>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, account.Name)

	textBody := fmt.Sprintf(`Two-Factor Authentication Disabled

Hi %s,

Two-factor authentication was just disabled on your account. Signing in now requires only your password.

Didn't do this? Reset your password immediately, re-enable two-factor authentication, and contact support.

This is an automated message. Please do not reply to this email.
`, account.Name)

	return s.send(ctx, account.Email, "Two-factor authentication disabled", htmlBody, textBody)
}

func (s *SESNotifier) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security notification via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security notification sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// LogNotifier records notifications in the log instead of sending email.
// Used in development and when email delivery is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// TwoFactorEnabled logs the enable event
func (n *LogNotifier) TwoFactorEnabled(ctx context.Context, account *models.Account) error {
	n.logger.Info("notification: two-factor enabled",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)))
	return nil
}

// TwoFactorDisabled logs the disable event
func (n *LogNotifier) TwoFactorDisabled(ctx context.Context, account *models.Account) error {
	n.logger.Info("notification: two-factor disabled",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)))
	return nil
}
