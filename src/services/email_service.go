// backend/src/services/email_service.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/petshop/backend/src/config"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// EmailService delivers operational notifications. Today that is only the
// reconciliation health alert sent when a run's automatic tie-back rate
// falls below the configured threshold.
type EmailService interface {
	SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.AlertEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or AlertEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
			alertEmail:  config.Cfg.AlertEmail,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.AlertEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
			AlertEmail:   config.Cfg.AlertEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

func healthAlertSubject(tenantID int64, snap *models.HealthSnapshot) string {
	return fmt.Sprintf("[Conciliacao] Tie-back rate CRITICAL for tenant %d on %s", tenantID, snap.ProcessDate.Format("2006-01-02"))
}

func healthAlertBody(tenantID int64, snap *models.HealthSnapshot) string {
	return fmt.Sprintf(`The automatic tie-back rate for tenant %d dropped below the healthy threshold.

Processing date:   %s
Validated receipts: %d
Tied automatically: %d
Orphan receipts:    %d
Automatic tie rate: %.2f%%

Orphan and ambiguous receipts are waiting in the reconciliation screen for manual review.`,
		tenantID, snap.ProcessDate.Format("2006-01-02"),
		snap.TotalReceipts, snap.TiedCount, snap.OrphanCount, snap.AutoTieRate*100)
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	AlertEmail   string
}

func (s *SMTPEmailService) SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error {
	from := s.SenderEmail
	to := []string{s.AlertEmail}
	subject := healthAlertSubject(tenantID, snap)
	body := healthAlertBody(tenantID, snap)

	header := make(map[string]string)
	header["From"] = from
	header["To"] = s.AlertEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	err := smtp.SendMail(addr, auth, from, to, []byte(message))
	if err != nil {
		logger.L.Error("Failed to send health alert via SMTP", "error", err, "to", s.AlertEmail)
		return fmt.Errorf("failed to send health alert via SMTP: %w", err)
	}
	logger.L.Info("Health alert sent successfully via SMTP", "to", s.AlertEmail, "tenantID", tenantID)
	return nil
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	alertEmail  string
}

func (s *MailgunEmailService) SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := healthAlertSubject(tenantID, snap)
	plainTextBody := healthAlertBody(tenantID, snap)

	message := s.mg.NewMessage(from, subject, plainTextBody, s.alertEmail)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send health alert via Mailgun", "error", err, "to", s.alertEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Health alert sent successfully via Mailgun", "to", s.alertEmail, "id", id, "tenantID", tenantID)
	return nil
}

// MockEmailService logs instead of sending; the default outside production.
type MockEmailService struct{}

func (s *MockEmailService) SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error {
	logger.L.Info("MOCK health alert",
		"tenantID", tenantID,
		"processDate", snap.ProcessDate.Format("2006-01-02"),
		"autoTieRate", snap.AutoTieRate,
		"health", snap.Health)
	return nil
}
