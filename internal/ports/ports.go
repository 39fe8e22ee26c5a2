// Package ports defines the narrow interfaces through which the credit
// engine talks to everything outside its own process: persistent
// storage, the LLM, the payment gateway, SMS/voice messaging,
// blockchain notarization, and text-to-speech. Each concrete
// implementation lives in its own package (internal/store,
// internal/llm, internal/payments, internal/messaging,
// internal/blockchain, internal/tts) so the orchestrator and agents can
// be built and tested against fakes.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Profile is a borrower's stored profile (spec §2/§6). Streak, LastActive,
// XP, and Badges are the gamification metadata fields spec §6 nests under
// profiles[id].metadata.
type Profile struct {
	Address           string
	Name              string
	PhoneNumber       string
	PreferredLanguage string // "en", "hi", "ml"
	TrustScore        float64
	CircleID          string
	UPIHandle         string // disbursement destination for CreatePayoutToUPI
	Streak            int
	LastActive        time.Time
	XP                int
	Badges            []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Loan is a persisted loan request/decision record.
type Loan struct {
	ID               string
	BorrowerAddress  string
	CircleID         string
	AmountRequested  float64
	AmountApproved   float64
	Purpose          string
	Tier             string // risk tier, see internal/agents/riskoracle
	InterestRate     float64
	TenureWeeks      int
	EMIAmount        float64
	Status           string // "voting", "approved", "rejected", "disbursed", "repaying", "completed", "defaulted"
	BlockchainTxHash string
	CreatedAt        time.Time
	DecidedAt        time.Time
	DisbursedAt      time.Time
	CompletedAt      time.Time
}

// Vouch is a stake placed by one member backing another's creditworthiness.
type Vouch struct {
	ID               string
	VoucherAddr      string
	VouchedAddr      string
	CircleID         string
	Level            string // "basic", "strong", "maximum"
	Amount           float64
	Status           string // "active", "returned", "slashed"
	BlockchainTxHash string
	CreatedAt        time.Time
}

// Transaction is a ledger entry for SAATHI-token balance movements.
type Transaction struct {
	ID        string
	Address   string
	Amount    float64 // signed: positive credit, negative debit
	Reason    string
	RefID     string // loan ID, vouch ID, or reconciliation ID
	CreatedAt time.Time
}

// TrustScoreSnapshot is one point in a borrower's trust score history.
type TrustScoreSnapshot struct {
	Address   string
	Score     float64
	Reason    string
	Timestamp time.Time
}

// LoanVote is a single quadratic vote cast on a pending loan.
type LoanVote struct {
	LoanID    string
	VoterAddr string
	Tokens    int // tokens committed, vote power = sqrt(tokens)
	Support   bool
	CastAt    time.Time
}

// Repayment is a single installment payment against a loan.
type Repayment struct {
	ID     string
	LoanID string
	Amount float64
	PaidAt time.Time
	OnTime bool
}

// DiaryEntry is a borrower's self-reported financial-diary entry. Income
// entries (Type == "income") feed RiskOracle's incomeStability and
// loanToIncome factors and LoanAdvisor's affordability estimate; other
// entry types are free-form notes that no agent scores.
type DiaryEntry struct {
	ID        string
	Address   string
	Type      string // "income", "expense", "note"
	Amount    float64
	Note      string
	CreatedAt time.Time
}

// Circle is a lending circle (trust network) of members.
type Circle struct {
	ID        string
	Name      string
	Members   []string
	CreatedAt time.Time
}

// Store is the persistence port. All methods are safe for concurrent use.
// Implementations: internal/store (MemoryStore and PostgresStore).
type Store interface {
	GetProfile(ctx context.Context, address string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error

	GetLoan(ctx context.Context, id string) (*Loan, error)
	SaveLoan(ctx context.Context, l *Loan) error
	ListLoansByBorrower(ctx context.Context, address string) ([]*Loan, error)
	ListPendingLoans(ctx context.Context) ([]*Loan, error)

	GetVouch(ctx context.Context, id string) (*Vouch, error)
	SaveVouch(ctx context.Context, v *Vouch) error
	ListVouchesForLoan(ctx context.Context, loanID string) ([]*Vouch, error)
	ListVouchesByVoucher(ctx context.Context, address string) ([]*Vouch, error)

	AppendTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, address string) ([]*Transaction, error)
	Balance(ctx context.Context, address string) (float64, error)

	AppendTrustScoreHistory(ctx context.Context, s *TrustScoreSnapshot) error
	ListTrustScoreHistory(ctx context.Context, address string) ([]*TrustScoreSnapshot, error)
	// UpdateTrustScore atomically applies delta to address's trust score
	// (clamped to [0,100]), appends a history snapshot for reason, and
	// returns the updated profile. This is the only sanctioned mutation
	// path for trust score; callers must not adjust Profile.TrustScore
	// directly and call SaveProfile.
	UpdateTrustScore(ctx context.Context, address string, delta float64, reason string) (*Profile, error)

	CastVote(ctx context.Context, v *LoanVote) error
	ListVotes(ctx context.Context, loanID string) ([]*LoanVote, error)

	SaveRepayment(ctx context.Context, r *Repayment) error
	ListRepayments(ctx context.Context, loanID string) ([]*Repayment, error)

	SaveDiaryEntry(ctx context.Context, e *DiaryEntry) error
	ListDiaryEntries(ctx context.Context, address string) ([]*DiaryEntry, error)

	GetCircle(ctx context.Context, id string) (*Circle, error)
	SaveCircle(ctx context.Context, c *Circle) error
	// ListCirclesForMember returns every circle address belongs to.
	// Profile.CircleID is a member's primary circle; a member can also
	// hold secondary memberships recorded only on Circle.Members, so
	// agents computing circle-derived signals (RiskOracle's circle
	// health bonus, FraudGuard's sybil check) must call this instead of
	// assuming a single membership.
	ListCirclesForMember(ctx context.Context, address string) ([]*Circle, error)

	Ping(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// LLM
// -----------------------------------------------------------------------------

// ChatMessage is one turn in an LLM conversation.
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// CompletionRequest is a single LLM completion call.
type CompletionRequest struct {
	Messages    []ChatMessage
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the LLM's reply plus token accounting.
type CompletionResponse struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// LLM is the language model port used by Nova to classify intent and
// draft replies.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

// CheckoutSession is a hosted checkout page reference returned by the
// payment gateway.
type CheckoutSession struct {
	ID  string
	URL string
}

// Payments is the payment gateway port (Dodo-compatible; see
// internal/payments for the stripe-go-backed implementation).
type Payments interface {
	CreateCheckoutSession(ctx context.Context, borrowerAddr string, amount float64, currency string) (*CheckoutSession, error)
	CreatePayoutToUPI(ctx context.Context, borrowerAddr, upiID string, amount float64) (txRef string, err error)
	VerifyWebhookSignature(payload []byte, signatureHeader string) (bool, error)
}

// -----------------------------------------------------------------------------
// Messaging
// -----------------------------------------------------------------------------

// Messaging is the SMS/voice notification port.
type Messaging interface {
	SendSMS(ctx context.Context, toPhone, templateName string, params map[string]string) error
	SendVoiceCall(ctx context.Context, toPhone, templateName string, params map[string]string) error
}

// -----------------------------------------------------------------------------
// Blockchain
// -----------------------------------------------------------------------------

// Blockchain is the notarization port. Every method is intended to be
// invoked fire-and-forget via internal/tasks — callers must not block
// the request path on confirmation.
type Blockchain interface {
	RecordLoan(ctx context.Context, loanID, borrowerAddr string, amount float64) (txHash string, err error)
	RecordRepayment(ctx context.Context, loanID string, amount float64) (txHash string, err error)
	StakeForVouch(ctx context.Context, vouchID, voucherAddr string, amount float64) (txHash string, err error)
	UpdateTrustScoreOnChain(ctx context.Context, address string, score float64) (txHash string, err error)
}

// -----------------------------------------------------------------------------
// TTS
// -----------------------------------------------------------------------------

// Speech is a synthesized audio clip.
type Speech struct {
	AudioURL string
	CacheKey string // content-address of (text, voice, language); the synthesis model is fixed and not part of the key
}

// TTS is the text-to-speech port, used to narrate Nova's replies in the
// borrower's preferred language.
type TTS interface {
	Synthesize(ctx context.Context, text, voiceID, language string) (*Speech, error)
}
