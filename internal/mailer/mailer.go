// Package mailer sends order e-mails to customers over SMTP.
package mailer

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Currency is the ISO 4217 code used when formatting amounts.
	Currency string
	// RequireTLS refuses to send over connections without STARTTLS.
	RequireTLS bool
}

// StatusEmail is the content of an order status change e-mail.
type StatusEmail struct {
	To          string
	Name        string
	Locale      string
	OrderNumber string
	From        string
	Status      string
	Reason      string
	Total       decimal.Decimal
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<body style="font-family: Arial, sans-serif;">
	<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
	<p>Your order <strong>{{.OrderNumber}}</strong> is now <strong>{{.Status}}</strong> (was {{.From}}).</p>
	{{- if .Reason}}
	<p>Reason: {{.Reason}}</p>
	{{- end}}
	<p>Order total: {{.Total}}</p>
</body>
</html>
`))

// SMTP delivers e-mails through a single SMTP relay.
type SMTP struct {
	client *mail.Client
	from   string
	unit   currency.Unit
}

// New creates an SMTP mailer. The connection is opened per message.
func New(cfg Config) (*SMTP, error) {
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	unit, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return nil, errors.Wrapf(err, "parse currency %q", cfg.Currency)
	}

	policy := mail.TLSOpportunistic
	if cfg.RequireTLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &SMTP{client: client, from: cfg.From, unit: unit}, nil
}

// SendStatusChanged e-mails the customer about a new order status.
func (s *SMTP) SendStatusChanged(ctx context.Context, e StatusEmail) error {
	msg, err := s.statusMessage(e)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(err, "send to %s", e.To)
	}
	return nil
}

func (s *SMTP) statusMessage(e StatusEmail) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, errors.Wrap(err, "set sender")
	}
	if err := msg.To(e.To); err != nil {
		return nil, errors.Wrap(err, "set recipient")
	}
	msg.Subject("Order " + e.OrderNumber + " is " + strings.ToLower(e.Status))

	body, err := renderStatus(e, s.unit)
	if err != nil {
		return nil, err
	}
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

func renderStatus(e StatusEmail, unit currency.Unit) (string, error) {
	tag := parseLocale(e.Locale)
	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, struct {
		StatusEmail
		Lang  string
		Total string
	}{
		StatusEmail: e,
		Lang:        tag.String(),
		Total:       FormatMoney(tag, unit, e.Total),
	}); err != nil {
		return "", errors.Wrap(err, "render status e-mail")
	}
	return buf.String(), nil
}

// FormatMoney renders an amount with locale digit grouping and the ISO code.
func FormatMoney(tag language.Tag, unit currency.Unit, amount decimal.Decimal) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%.2f", amount.InexactFloat64()) + " " + unit.String()
}

func parseLocale(locale string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || tag == language.Und {
		return language.English
	}
	return tag
}
