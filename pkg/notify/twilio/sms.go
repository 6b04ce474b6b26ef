// Package twilio texts diagnosis summaries to on-call clinicians.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/redact"
)

const maxBodyRunes = 320

type Config struct {
	Enabled    bool     `mapstructure:"enabled"`
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
}

func (c Config) Validate() error {
	if c.AccountSID == "" || c.AuthToken == "" {
		return errors.New("missing twilio credentials")
	}
	if c.From == "" || len(c.To) == 0 {
		return errors.New("sms from/to required")
	}
	return nil
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// Notifier sends one SMS per recipient for every diagnosis.
type Notifier struct {
	cfg    Config
	client messageCreator
	logger *slog.Logger
}

func NewNotifier(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonValidation)
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newNotifier(cfg, rest.Api, logger), nil
}

func newNotifier(cfg Config, client messageCreator, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "sms_notifier"),
	}
}

func (n *Notifier) Notify(ctx context.Context, res diagnosis.Result) error {
	body := Body(res)
	var errs []error
	for _, to := range n.cfg.To {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		params := &api.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(n.cfg.From)
		params.SetBody(body)
		resp, err := n.client.CreateMessage(params)
		if err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
			continue
		}
		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		n.logger.Info("diagnosis_sms_sent", slog.String("message_sid", sid))
	}
	if len(errs) > 0 {
		return errorsx.Wrap(errors.Join(errs...), errorsx.ReasonDelivery)
	}
	return nil
}

// Body renders the SMS text. Identifiers are masked when redaction is on.
func Body(res diagnosis.Result) string {
	return "CliniRelay diagnosis: " + redact.Preview(strings.TrimSpace(res.Summary), maxBodyRunes)
}
