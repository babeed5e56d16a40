// Package notify 通过 SMTP 把致命错误发送给运维。
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"fitsstore-go/internal/config"
	"fitsstore-go/pkg/log"
)

// Notifier 发送一条运维通知。
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Mailer 是基于 net/smtp 的 Notifier。
type Mailer struct {
	server string
	from   string
	to     []string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New 按配置返回 Notifier；enabled 为 false 或未配置 SMTP 时返回只写日志的实现。
func New(cfg config.NotifyConfig, enabled bool) Notifier {
	if !enabled || cfg.SMTPServer == "" || len(cfg.To) == 0 {
		return LogOnly{}
	}
	return &Mailer{server: cfg.SMTPServer, from: cfg.From, to: cfg.To, send: smtp.SendMail}
}

func (m *Mailer) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(m.from, m.to, subject, body, time.Now())
	addr := m.server
	if !strings.Contains(addr, ":") {
		addr += ":25"
	}
	if err := m.send(addr, nil, m.from, m.to, msg); err != nil {
		log.Errorf("[Notify] 发送邮件失败: %v", err)
		return err
	}
	return nil
}

func buildMessage(from string, to []string, subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogOnly 只把通知写入错误日志。
type LogOnly struct{}

func (LogOnly) Notify(_ context.Context, subject, body string) error {
	log.Errorw("[Notify] "+subject, "body", body)
	return nil
}
