package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"text/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/amirphl/lead-lifecycle/app/dto"
)

var runReportTemplate = template.Must(template.New("run_report").Parse(
	`Lead maintenance run {{.Summary.RunID}}

Operator:        {{.Summary.Operator}}
Reference date:  {{.Summary.ReferenceDate}}
Days threshold:  {{.Summary.DaysThreshold}}
Cutoff:          {{.Summary.Cutoff}}
Affected leads:  {{.Summary.AffectedCount}}
Duration:        {{.Summary.DurationMs}} ms
{{range .Leads}}
  #{{.ID}}  {{.PhoneNumber}}  {{.Status}}{{end}}
`))

// RunReportMailer sends a short summary after a maintenance run
type RunReportMailer interface {
	SendRunReport(ctx context.Context, summary dto.MaintenanceRunSummary, leads []dto.LeadSnapshotDTO) error
}

const defaultReportSendTimeout = 30 * time.Second

// SMTPRunReportMailer delivers run reports through an SMTP relay
type SMTPRunReportMailer struct {
	dialer     *gomail.Dialer
	from       string
	recipients []string
	timeout    time.Duration
}

// NewSMTPRunReportMailer creates a mailer for the given relay and recipients.
// One delivery never outlives timeout or the caller's context; timeout <= 0 means 30s.
func NewSMTPRunReportMailer(host string, port int, user, password, from string, recipients []string, timeout time.Duration) *SMTPRunReportMailer {
	if timeout <= 0 {
		timeout = defaultReportSendTimeout
	}
	return &SMTPRunReportMailer{
		dialer:     gomail.NewDialer(host, port, user, password),
		from:       from,
		recipients: recipients,
		timeout:    timeout,
	}
}

// SendRunReport renders the plain text report and sends it to every recipient in one message
func (m *SMTPRunReportMailer) SendRunReport(ctx context.Context, summary dto.MaintenanceRunSummary, leads []dto.LeadSnapshotDTO) error {
	if len(m.recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderRunReport(summary, leads)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("[leads] %s affected %d lead(s)", summary.Operator, summary.AffectedCount))
	msg.SetBody("text/plain", body)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send run report: %w", err)
	}
	return nil
}

// send runs the whole SMTP conversation on one connection whose deadline is the
// earlier of the context deadline and m.timeout. Cancelling ctx closes the connection.
func (m *SMTPRunReportMailer) send(ctx context.Context, msg *gomail.Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	defer func() {
		if err == nil {
			return
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		} else if errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	}()

	addr := net.JoinHostPort(m.dialer.Host, strconv.Itoa(m.dialer.Port))
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}

	tlsConfig := m.dialer.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: m.dialer.Host}
	}
	if m.dialer.SSL {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, m.dialer.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if !m.dialer.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if m.dialer.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.dialer.Username, m.dialer.Password, m.dialer.Host)); err != nil {
				return err
			}
		}
	}

	err = gomail.Send(gomail.SendFunc(func(from string, to []string, body io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := body.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}), msg)
	if err != nil {
		return err
	}
	return c.Quit()
}

func renderRunReport(summary dto.MaintenanceRunSummary, leads []dto.LeadSnapshotDTO) (string, error) {
	var buf bytes.Buffer
	err := runReportTemplate.Execute(&buf, struct {
		Summary dto.MaintenanceRunSummary
		Leads   []dto.LeadSnapshotDTO
	}{summary, leads})
	if err != nil {
		return "", fmt.Errorf("failed to render run report: %w", err)
	}
	return buf.String(), nil
}

// NoopRunReportMailer is used when SMTP is not configured
type NoopRunReportMailer struct{}

func (NoopRunReportMailer) SendRunReport(context.Context, dto.MaintenanceRunSummary, []dto.LeadSnapshotDTO) error {
	return nil
}
