package mail

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"gopkg.in/gomail.v2"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
)

// Message is a rendered email with an HTML body and a plain-text alternative.
type Message struct {
	To        string
	Subject   string
	HTMLBody  string
	PlainBody string
}

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// LoadSMTPConfig reads SMTP settings from the environment.
func LoadSMTPConfig() SMTPConfig {
	port, err := strconv.Atoi(env.GetEnv("SMTP_PORT", "587"))
	if err != nil {
		port = 587
	}
	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "no-reply@localhost"
		log.Warnf("SMTP_SENDER not set, using default sender: %s", sender)
	}
	return SMTPConfig{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     port,
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   sender,
	}
}

// Sender delivers rendered messages.
type Sender interface {
	Send(msg Message) error
}

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	sender string
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		sender: cfg.Sender,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) Send(msg Message) error {
	if m.dialer.Host == "" {
		return fmt.Errorf("SMTP_HOST is not configured")
	}
	gm := buildMessage(m.sender, msg)
	if err := m.dialer.DialAndSend(gm); err != nil {
		log.Errorf("SMTP send error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Infof("Email sent to %s via %s:%d", msg.To, m.dialer.Host, m.dialer.Port)
	return nil
}

func buildMessage(sender string, msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", sender)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	if msg.PlainBody != "" {
		gm.SetBody("text/plain", msg.PlainBody)
		gm.AddAlternative("text/html", msg.HTMLBody)
	} else {
		gm.SetBody("text/html", msg.HTMLBody)
	}
	return gm
}
