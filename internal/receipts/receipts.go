// Package receipts provides cryptographic receipt signing for every money
// movement the credit engine makes: disbursements, repayments, vouch
// stakes, and vouch returns/slashes. A signed receipt lets a borrower or
// voucher independently verify the platform actually processed a given
// movement, without trusting the API response alone.
package receipts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrReceiptNotFound = errors.New("receipts: not found")
	ErrSigningDisabled = errors.New("receipts: signing disabled (no HMAC secret configured)")
)

// MovementType identifies which ledger movement a receipt covers.
type MovementType string

const (
	MovementDisbursement MovementType = "disbursement"
	MovementRepayment    MovementType = "repayment"
	MovementVouchStake   MovementType = "vouch_stake"
	MovementVouchReturn  MovementType = "vouch_return"
	MovementVouchSlash   MovementType = "vouch_slash"
)

// Receipt is a cryptographically signed proof that the platform processed
// a SAATHI-token ledger movement.
type Receipt struct {
	ID           string       `json:"id"`
	MovementType MovementType `json:"movementType"`
	Reference    string       `json:"reference"`           // loan ID or vouch ID
	From         string       `json:"from"`                // debited address
	To           string       `json:"to"`                  // credited address
	Amount       string       `json:"amount"`              // SAATHI-token amount
	ServiceID    string       `json:"serviceId,omitempty"` // optional circle ID
	Status       string       `json:"status"`              // "confirmed" or "failed"
	PayloadHash  string       `json:"payloadHash"`         // SHA-256 of canonical payload
	Signature    string       `json:"signature"`           // HMAC-SHA256 signature
	IssuedAt     time.Time    `json:"issuedAt"`            // when the receipt was signed
	ExpiresAt    time.Time    `json:"expiresAt"`           // when the signature expires
	Metadata     string       `json:"metadata,omitempty"`  // optional extra context
	CreatedAt    time.Time    `json:"createdAt"`
}

// IssueRequest is the input for creating a receipt.
type IssueRequest struct {
	Movement  MovementType
	Reference string
	From      string
	To        string
	Amount    string
	ServiceID string
	Status    string
	Metadata  string
}

// VerifyRequest is the input for verifying a receipt signature.
type VerifyRequest struct {
	ReceiptID string `json:"receiptId" binding:"required"`
}

// VerifyResponse is the result of receipt verification.
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	ReceiptID string `json:"receiptId"`
	Expired   bool   `json:"expired,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Store persists receipt data.
type Store interface {
	Create(ctx context.Context, receipt *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	ListByMember(ctx context.Context, memberAddr string, limit int) ([]*Receipt, error)
	ListByReference(ctx context.Context, reference string) ([]*Receipt, error)
}

// receiptPayload is the canonical struct signed by HMAC.
// Field order must be deterministic (JSON marshalling of struct is by field order).
type receiptPayload struct {
	Amount    string `json:"amount"`
	From      string `json:"from"`
	Movement  string `json:"movement"`
	Reference string `json:"reference"`
	ServiceID string `json:"serviceId"`
	Status    string `json:"status"`
	To        string `json:"to"`
}
