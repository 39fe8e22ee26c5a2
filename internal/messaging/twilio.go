// Package messaging implements the Messaging port against Twilio's SMS
// and voice APIs, used to notify borrowers of loan decisions, vouch
// requests, and repayment reminders in their preferred language.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/saathi/internal/ports"
)

const baseURL = "https://api.twilio.com/2010-04-01/Accounts"

// templates maps a template name to a message body format string.
// Twilio has no first-class template concept for plain SMS (unlike
// WhatsApp Business templates); this repo renders its own.
var templates = map[string]string{
	"loan_approved":    "Your Saathi loan of ₹%s has been approved. Funds will reach your UPI shortly.",
	"loan_rejected":    "Your Saathi loan request could not be approved this time: %s",
	"vouch_received":   "%s has vouched for you in your circle with a %s stake.",
	"repayment_due":    "Your Saathi EMI of ₹%s is due. Pay on time to keep your bharosa score healthy.",
	"repayment_missed": "You missed a Saathi repayment of ₹%s. Contact your circle to avoid a trust penalty.",
}

// Client is the Twilio REST API implementation of ports.Messaging.
type Client struct {
	accountSID string
	authToken  string
	fromPhone  string
	fromVoice  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Messaging = (*Client)(nil)

func New(accountSID, authToken, fromPhone, fromVoice string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromPhone:  fromPhone,
		fromVoice:  fromVoice,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *Client) SendSMS(ctx context.Context, toPhone, templateName string, params map[string]string) error {
	body, err := render(templateName, params)
	if err != nil {
		return err
	}
	return c.post(ctx, "Messages.json", url.Values{
		"To":   {toPhone},
		"From": {c.fromPhone},
		"Body": {body},
	})
}

func (c *Client) SendVoiceCall(ctx context.Context, toPhone, templateName string, params map[string]string) error {
	body, err := render(templateName, params)
	if err != nil {
		return err
	}
	twiml := fmt.Sprintf(`<Response><Say language="en-IN">%s</Say></Response>`, body)
	return c.post(ctx, "Calls.json", url.Values{
		"To":    {toPhone},
		"From":  {c.fromVoice},
		"Twiml": {twiml},
	})
}

func render(templateName string, params map[string]string) (string, error) {
	tmpl, ok := templates[templateName]
	if !ok {
		return "", fmt.Errorf("messaging: unknown template %q", templateName)
	}
	// Most templates take a single positional argument ("value": an
	// amount or a reason); two-argument templates take "actor" first and
	// "value" second.
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, params["actor"], params["value"]), nil
	}
	return fmt.Sprintf(tmpl, params["value"]), nil
}

func (c *Client) post(ctx context.Context, resource string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/%s/%s", baseURL, c.accountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Error("twilio error", "status", resp.StatusCode, "resource", resource)
		return fmt.Errorf("twilio error: status %d", resp.StatusCode)
	}
	return nil
}
