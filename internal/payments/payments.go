// Package payments implements the Payments port: hosted checkout for
// loan disbursal top-ups, UPI payouts to borrowers, and webhook
// signature verification for the Dodo-compatible payment gateway
// (spec §6, X-Dodo-Signature header).
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/transfer"

	"github.com/mbd888/saathi/internal/ports"
)

// Gateway is the stripe-go-backed implementation of ports.Payments.
// The gateway behaves like Dodo on the wire (its own HMAC webhook
// header, not Stripe's signed-event format) while reusing Stripe's
// hosted checkout and transfer APIs for the actual money movement.
type Gateway struct {
	webhookSecret []byte
	successURL    string
	cancelURL     string
}

var _ ports.Payments = (*Gateway)(nil)

// New configures the Stripe API key globally (as stripe-go expects)
// and returns a Gateway scoped to the given webhook secret and
// checkout redirect URLs.
func New(apiKey, webhookSecret, successURL, cancelURL string) *Gateway {
	stripe.Key = apiKey
	return &Gateway{
		webhookSecret: []byte(webhookSecret),
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// CreateCheckoutSession opens a hosted checkout page for a borrower to
// top up their SAATHI-token balance before vouching or repaying.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, borrowerAddr string, amount float64, currency string) (*ports.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(toMinorUnits(amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Saathi circle top-up"),
					},
				},
			},
		},
		Metadata: map[string]string{
			"borrower_address": borrowerAddr,
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &ports.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePayoutToUPI disburses an approved loan to the borrower's UPI
// handle. stripe-go's Transfer API is repurposed here: the UPI ID
// travels as destination metadata since UPI payout rails sit outside
// Stripe Connect's native destinations.
func (g *Gateway) CreatePayoutToUPI(ctx context.Context, borrowerAddr, upiID string, amount float64) (string, error) {
	params := &stripe.TransferParams{
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(string(stripe.CurrencyINR)),
		Metadata: map[string]string{
			"borrower_address": borrowerAddr,
			"upi_id":           upiID,
		},
	}
	params.Context = ctx

	tr, err := transfer.New(params)
	if err != nil {
		return "", fmt.Errorf("create upi payout: %w", err)
	}
	return tr.ID, nil
}

// VerifyWebhookSignature checks the X-Dodo-Signature header: HMAC-SHA256
// of the raw request body, hex-encoded, compared in constant time.
func (g *Gateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (bool, error) {
	if len(g.webhookSecret) == 0 {
		return false, fmt.Errorf("verify webhook signature: no webhook secret configured")
	}
	mac := hmac.New(sha256.New, g.webhookSecret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader)), nil
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
