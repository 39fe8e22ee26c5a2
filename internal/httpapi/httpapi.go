// Package httpapi exposes the credit engine's HTTP surface (spec §6):
// Nova chat, loan requests and voting, vouching, and the payment
// webhook. Routing, middleware ordering, and the request-ID/logging
// conventions follow the teacher's internal/server/server.go.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/auth"
	"github.com/mbd888/saathi/internal/gamification"
	"github.com/mbd888/saathi/internal/governance"
	"github.com/mbd888/saathi/internal/health"
	"github.com/mbd888/saathi/internal/idgen"
	"github.com/mbd888/saathi/internal/logging"
	"github.com/mbd888/saathi/internal/metrics"
	"github.com/mbd888/saathi/internal/orchestrator"
	"github.com/mbd888/saathi/internal/pagination"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/ratelimit"
	"github.com/mbd888/saathi/internal/receipts"
	"github.com/mbd888/saathi/internal/security"
	"github.com/mbd888/saathi/internal/tasks"
	"github.com/mbd888/saathi/internal/validation"
	"github.com/mbd888/saathi/internal/voting"
	"github.com/mbd888/saathi/internal/vouch"
)

// Deps are the collaborators the API dispatches to. Blockchain,
// Messaging, TTS, Tasks and Receipts may be nil, in which case the
// features that use them are skipped (Nova replies render as text only
// when TTS is nil). The remaining fields are required.
type Deps struct {
	Store        ports.Store
	Orchestrator *orchestrator.Orchestrator
	Vouches      *vouch.Service
	Receipts     *receipts.Service
	Payments     ports.Payments
	Blockchain   ports.Blockchain
	Messaging    ports.Messaging
	TTS          ports.TTS
	Tasks        *tasks.Manager
	RateLimiter  *ratelimit.Limiter
	Verifier     *auth.Verifier
	Health       *health.Registry
	Logger       *slog.Logger
	CORSOrigins  []string
}

// New builds the gin engine with every route and middleware wired.
func New(deps Deps) *gin.Engine {
	r := gin.New()

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "internal_error",
			"message":    "an unexpected error occurred",
			"request_id": logging.RequestID(c.Request.Context()),
		})
	}))
	r.Use(security.HeadersMiddleware())
	r.Use(security.CORSMiddleware(deps.CORSOrigins))
	r.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	r.Use(requestIDMiddleware(deps.Logger))
	r.Use(responseTimeMiddleware())
	r.Use(metrics.Middleware())
	r.Use(auth.Middleware(deps.Verifier))
	r.Use(subjectMiddleware())
	r.Use(deps.RateLimiter.Middleware(authSubjectKey))

	r.GET("/health", healthHandler(deps))
	r.GET("/health/live", livenessHandler)
	r.GET("/health/ready", readinessHandler(deps))
	r.GET("/metrics", metrics.Handler())

	h := &handlers{deps: deps}

	authed := r.Group("/")
	authed.Use(auth.RequireAuth())
	authed.POST("/nova/chat", h.novaChat)
	authed.POST("/loans", h.createLoan)
	authed.POST("/loans/:id/vote", h.voteLoan)
	authed.POST("/loans/:id/vote/simulate", h.simulateVote)
	authed.POST("/loans/:id/default", h.defaultLoan)
	authed.POST("/vouches", h.createVouch)
	authed.GET("/transactions", h.listTransactions)
	authed.GET("/circles/:id/leaderboard", h.circleLeaderboard)
	authed.POST("/payments/checkout", h.createCheckoutSession)
	if deps.Receipts != nil {
		receipts.NewHandler(deps.Receipts).RegisterRoutes(authed)
	}

	// Webhooks authenticate via HMAC signature, not the bearer scheme.
	r.POST("/payments/webhook", h.paymentsWebhook)

	return r
}

// authSubjectKey is the rate limiter's gin context key for the
// authenticated principal (falls back to client IP when absent).
const authSubjectKey = "saathi_subject"

func requestIDMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func responseTimeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		c.Header("X-Response-Time", formatMillis(time.Since(start)))
	}
}

// subjectMiddleware copies the authenticated subject (if any) into the
// context key the rate limiter keys on, so authenticated principals are
// limited per-account rather than per-IP.
func subjectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if subject := auth.GetSubject(c); subject != "" {
			c.Set(authSubjectKey, subject)
		}
		c.Next()
	}
}

func generateRequestID() string {
	return idgen.WithPrefix("req_")
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func idForLoan() string {
	return idgen.WithPrefix("loan_")
}

// writeError maps a classified apperr.Error (or an unclassified error,
// treated as KindFatalInternal) onto the spec's HTTP status table and
// writes the JSON envelope, always including the request ID so a
// borrower can reference it when asking for help.
func writeError(c *gin.Context, err error) {
	requestID := logging.RequestID(c.Request.Context())
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
		c.Header("Retry-After", "60")
	case apperr.KindDependencyFailure, apperr.KindCircuitOpen:
		status = http.StatusBadGateway
	case apperr.KindAgentFailure, apperr.KindFatalInternal:
		status = http.StatusInternalServerError
	}

	logging.L(c.Request.Context()).Error("request failed", "kind", kind, "error", err)

	c.AbortWithStatusJSON(status, gin.H{
		"error":      string(kind),
		"message":    err.Error(),
		"request_id": requestID,
	})
}

func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		healthy, statuses := deps.Health.CheckAll(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": statuses})
	}
}

func livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func readinessHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

type handlers struct {
	deps Deps
}

func (h *handlers) novaChat(c *gin.Context) {
	var req struct {
		Message      string `json:"message" binding:"required"`
		Language     string `json:"language"`
		IncludeVoice bool   `json:"include_voice"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	userID := auth.GetSubject(c)
	lang := languageOf(req.Language)

	h.applyGamification(c.Request.Context(), userID, gamification.EventLogin)

	result := h.deps.Orchestrator.ProcessMessage(c.Request.Context(), userID, req.Message, lang)

	resp := gin.H{
		"response":             result.Response,
		"message":              result.Response,
		"reasoning_traces":     result.Traces,
		"reasoning_traces_raw": result.Traces,
		"agents_used":          result.AgentsUsed,
		"intent":               result.Intent,
		"duration_ms":          result.DurationMs,
	}
	if result.Action != "" {
		resp["action"] = result.Action
	}
	if result.Target != "" {
		resp["target"] = result.Target
	}
	if result.Data != nil {
		resp["data"] = result.Data
	}
	if len(result.GuideSteps) > 0 {
		resp["guide_steps"] = result.GuideSteps
	}

	if req.IncludeVoice && h.deps.TTS != nil && result.Response != "" {
		voiceID := voiceIDFor(lang)
		if speech, err := h.deps.TTS.Synthesize(c.Request.Context(), result.Response, voiceID, string(lang)); err == nil {
			resp["voice_audio"] = speech.AudioURL
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handlers) createLoan(c *gin.Context) {
	var req struct {
		CircleID   string  `json:"circle_id" binding:"required"`
		Amount     float64 `json:"amount" binding:"required"`
		Purpose    string  `json:"purpose"`
		TenureDays int     `json:"tenure_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	userID := auth.GetSubject(c)
	decision := h.deps.Orchestrator.ProcessLoanRequest(c.Request.Context(), userID, req.Amount, req.Purpose, req.CircleID)

	if !decision.Approved {
		metrics.LoansTotal.WithLabelValues("rejected").Inc()
		h.notifyLoanOutcome(c.Request.Context(), userID, "loan_rejected", decision.Reason)
		c.JSON(http.StatusOK, gin.H{
			"success":          false,
			"approved":         false,
			"reason":           decision.Reason,
			"advice":           adviceOf(decision),
			"suggested_action": suggestedActionOf(decision),
			"reasoning_traces": decision.Traces,
		})
		return
	}

	loan := &ports.Loan{
		ID:              idForLoan(),
		BorrowerAddress: userID,
		CircleID:        req.CircleID,
		AmountRequested: req.Amount,
		AmountApproved:  decision.ApprovedAmount,
		Purpose:         req.Purpose,
		Status:          "voting",
	}
	if decision.Advice != nil {
		loan.TenureWeeks = decision.Advice.Recommendation.RecommendedTenureWeeks
		loan.EMIAmount = decision.Advice.Recommendation.RecommendedEMI
	}
	if decision.RiskAssessment != nil {
		loan.Tier = decision.RiskAssessment.Tier
		loan.InterestRate = decision.RiskAssessment.Rate
	}
	if err := h.deps.Store.SaveLoan(c.Request.Context(), loan); err != nil {
		writeError(c, apperr.Wrap(apperr.KindFatalInternal, "save loan", err))
		return
	}

	if h.deps.Blockchain != nil && h.deps.Tasks != nil {
		h.deps.Tasks.Spawn("record_loan", func(ctx context.Context) error {
			txHash, err := h.deps.Blockchain.RecordLoan(ctx, loan.ID, loan.BorrowerAddress, loan.AmountApproved)
			if err != nil {
				return err
			}
			loan.BlockchainTxHash = txHash
			return h.deps.Store.SaveLoan(ctx, loan)
		})
	}

	metrics.LoansTotal.WithLabelValues("approved").Inc()
	h.notifyLoanOutcome(c.Request.Context(), userID, "loan_approved", fmt.Sprintf("%.0f", loan.AmountApproved))

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"loan":             loan,
		"ai_analysis":      decision,
		"reasoning_traces": decision.Traces,
	})
}

// notifyLoanOutcome sends the borrower an SMS summarizing a loan
// decision, fire-and-forget, so a slow or unavailable messaging
// provider never delays the HTTP response.
func (h *handlers) notifyLoanOutcome(ctx context.Context, borrowerAddr, templateName, value string) {
	if h.deps.Messaging == nil || h.deps.Tasks == nil {
		return
	}
	profile, err := h.deps.Store.GetProfile(ctx, borrowerAddr)
	if err != nil || profile.PhoneNumber == "" {
		return
	}
	h.deps.Tasks.Spawn("notify_loan_outcome", func(taskCtx context.Context) error {
		return h.deps.Messaging.SendSMS(taskCtx, profile.PhoneNumber, templateName, map[string]string{"value": value})
	})
}

// notifyVouchReceived lets the vouchee know they've been vouched for.
func (h *handlers) notifyVouchReceived(ctx context.Context, voucherAddr, voucheeAddr, level string) {
	if h.deps.Messaging == nil || h.deps.Tasks == nil {
		return
	}
	profile, err := h.deps.Store.GetProfile(ctx, voucheeAddr)
	if err != nil || profile.PhoneNumber == "" {
		return
	}
	h.deps.Tasks.Spawn("notify_vouch_received", func(taskCtx context.Context) error {
		return h.deps.Messaging.SendSMS(taskCtx, profile.PhoneNumber, "vouch_received", map[string]string{
			"actor": voucherAddr,
			"value": level,
		})
	})
}

func (h *handlers) voteLoan(c *gin.Context) {
	loanID := c.Param("id")
	var req struct {
		Vote        bool `json:"vote"`
		TokensSpent int  `json:"tokens_spent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	voter := auth.GetSubject(c)
	profile, err := h.deps.Store.GetProfile(c.Request.Context(), voter)
	if err != nil {
		writeError(c, err)
		return
	}

	tokens := req.TokensSpent
	if tokens <= 0 {
		tokens = h.governanceVotingPower(c.Request.Context(), profile)
	}

	if err := h.deps.Store.CastVote(c.Request.Context(), &ports.LoanVote{
		LoanID:    loanID,
		VoterAddr: voter,
		Tokens:    tokens,
		Support:   req.Vote,
	}); err != nil {
		writeError(c, apperr.Wrap(apperr.KindFatalInternal, "cast vote", err))
		return
	}

	votes, err := h.deps.Store.ListVotes(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindFatalInternal, "list votes", err))
		return
	}
	tally := voting.Count(votes)

	if tally.Approved {
		h.disburseLoan(c.Request.Context(), loanID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "vote recorded",
		"tally":   tally,
	})
}

// simulateVote previews how a hypothetical vote would move a loan's
// tally without casting it, so a member can check their vote's impact
// before spending tokens on it.
func (h *handlers) simulateVote(c *gin.Context) {
	loanID := c.Param("id")
	var req struct {
		Vote        bool `json:"vote"`
		TokensSpent int  `json:"tokens_spent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	voter := auth.GetSubject(c)
	tokens := req.TokensSpent
	if tokens <= 0 {
		profile, err := h.deps.Store.GetProfile(c.Request.Context(), voter)
		if err != nil {
			writeError(c, err)
			return
		}
		tokens = h.governanceVotingPower(c.Request.Context(), profile)
	}

	votes, err := h.deps.Store.ListVotes(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindFatalInternal, "list votes", err))
		return
	}

	result := voting.Simulate(votes, voter, tokens, req.Vote)
	c.JSON(http.StatusOK, gin.H{"simulation": result})
}

// disburseLoan moves an approved loan from voting to disbursed: it
// pays out to the borrower's UPI handle (if one is on file) and
// records the disbursement, fire-and-forget so a slow payment gateway
// never delays the voter's response.
func (h *handlers) disburseLoan(ctx context.Context, loanID string) {
	if h.deps.Tasks == nil {
		return
	}
	h.deps.Tasks.Spawn("disburse_loan", func(taskCtx context.Context) error {
		loan, err := h.deps.Store.GetLoan(taskCtx, loanID)
		if err != nil || loan.Status != "voting" {
			return err
		}

		if h.deps.Payments != nil {
			borrower, err := h.deps.Store.GetProfile(taskCtx, loan.BorrowerAddress)
			if err == nil && borrower.UPIHandle != "" {
				if _, err := h.deps.Payments.CreatePayoutToUPI(taskCtx, loan.BorrowerAddress, borrower.UPIHandle, loan.AmountApproved); err != nil {
					return err
				}
			}
		}

		loan.Status = "disbursed"
		loan.DisbursedAt = time.Now()
		if err := h.deps.Store.SaveLoan(taskCtx, loan); err != nil {
			return err
		}

		if h.deps.Receipts != nil {
			fmtAmount := strconv.FormatFloat(loan.AmountApproved, 'f', 6, 64)
			_ = h.deps.Receipts.IssueReceipt(taskCtx, receipts.IssueRequest{
				Movement:  receipts.MovementDisbursement,
				Reference: loan.ID,
				From:      loan.CircleID,
				To:        loan.BorrowerAddress,
				Amount:    fmtAmount,
				ServiceID: loan.CircleID,
				Status:    "confirmed",
			})
		}
		return nil
	})
}

// createCheckoutSession opens a hosted checkout page so a member can
// top up their SAATHI balance ahead of vouching or repaying.
func (h *handlers) createCheckoutSession(c *gin.Context) {
	var req struct {
		Amount   float64 `json:"amount" binding:"required"`
		Currency string  `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	if req.Currency == "" {
		req.Currency = "inr"
	}

	address := auth.GetSubject(c)
	session, err := h.deps.Payments.CreateCheckoutSession(c.Request.Context(), address, req.Amount, req.Currency)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindDependencyFailure, "create checkout session", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkout_url": session.URL, "session_id": session.ID})
}

func (h *handlers) createVouch(c *gin.Context) {
	var req struct {
		VoucheeID    string  `json:"vouchee_id" binding:"required"`
		CircleID     string  `json:"circle_id" binding:"required"`
		VouchLevel   string  `json:"vouch_level" binding:"required"`
		SaathiAmount float64 `json:"saathi_amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	voucher := auth.GetSubject(c)
	rec := h.deps.Orchestrator.ProcessVouchRequest(c.Request.Context(), voucher, req.VoucheeID, req.CircleID, req.VouchLevel)
	if !rec.Recommended {
		metrics.VouchesTotal.WithLabelValues("blocked").Inc()
		writeError(c, apperr.Validation("vouch blocked by fraud screening"))
		return
	}

	created, err := h.deps.Vouches.CreateVouch(c.Request.Context(), voucher, req.VoucheeID, req.CircleID, req.VouchLevel, req.SaathiAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.VouchesTotal.WithLabelValues("created").Inc()
	if h.deps.Receipts != nil {
		_ = h.deps.Receipts.IssueReceipt(c.Request.Context(), receipts.IssueRequest{
			Movement:  receipts.MovementVouchStake,
			Reference: created.ID,
			From:      voucher,
			To:        req.VoucheeID,
			Amount:    strconv.FormatFloat(created.Amount, 'f', 6, 64),
			ServiceID: req.CircleID,
			Status:    "confirmed",
		})
	}

	h.applyGamification(c.Request.Context(), voucher, gamification.EventVouch)
	h.notifyVouchReceived(c.Request.Context(), voucher, req.VoucheeID, req.VouchLevel)

	if h.deps.Blockchain != nil && h.deps.Tasks != nil {
		h.deps.Tasks.Spawn("stake_vouch", func(ctx context.Context) error {
			txHash, err := h.deps.Blockchain.StakeForVouch(ctx, created.ID, voucher, created.Amount)
			if err != nil {
				return err
			}
			created.BlockchainTxHash = txHash
			return h.deps.Store.SaveVouch(ctx, created)
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"vouch":               created,
		"vouchee_trust_score": rec.VoucheeTrustScore,
		"vouch_quality_grade": rec.VouchQualityGrade,
	})
}

// listTransactions returns the authenticated member's SAATHI-balance
// ledger, newest-first, cursor-paginated.
func (h *handlers) listTransactions(c *gin.Context) {
	address := auth.GetSubject(c)

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		writeError(c, apperr.Validation("invalid cursor"))
		return
	}

	all, err := h.deps.Store.ListTransactions(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	items := afterCursor(all, cursor)
	page, next, hasMore := pagination.ComputePage(items, limit, func(t *ports.Transaction) (time.Time, string) {
		return t.CreatedAt, t.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"transactions": page,
		"next_cursor":  next,
		"has_more":     hasMore,
	})
}

// afterCursor returns the transactions strictly after cursor's
// position, assuming txns is sorted ascending by (created_at, id).
func afterCursor(txns []*ports.Transaction, cursor *pagination.Cursor) []*ports.Transaction {
	if cursor == nil {
		return txns
	}
	for i, t := range txns {
		if t.CreatedAt.After(cursor.CreatedAt) || (t.CreatedAt.Equal(cursor.CreatedAt) && t.ID > cursor.ID) {
			return txns[i:]
		}
	}
	return nil
}

// circleLeaderboard ranks a circle's members by repayment rate, vouch
// activity, and defaults (spec §4.13).
func (h *handlers) circleLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	circle, err := h.deps.Store.GetCircle(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	standings := make([]gamification.MemberStanding, 0, len(circle.Members))
	for _, member := range circle.Members {
		loans, err := h.deps.Store.ListLoansByBorrower(ctx, member)
		if err != nil {
			writeError(c, err)
			return
		}
		vouches, err := h.deps.Store.ListVouchesByVoucher(ctx, member)
		if err != nil {
			writeError(c, err)
			return
		}

		var completed, defaulted int
		for _, loan := range loans {
			switch loan.Status {
			case "completed":
				completed++
			case "defaulted":
				defaulted++
			}
		}
		rate := 1.0
		if settled := completed + defaulted; settled > 0 {
			rate = float64(completed) / float64(settled)
		}

		standings = append(standings, gamification.MemberStanding{
			Address:       member,
			RepaymentRate: rate,
			VouchActivity: float64(len(vouches)),
			Defaults:      defaulted,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"circle_id":   circle.ID,
		"leaderboard": gamification.Leaderboard(standings),
	})
}

// paymentsWebhook applies a completed Dodo payment to its loan as a
// repayment. Idempotent on payment_id: a second delivery of the same
// payment is a no-op (spec scenario 6).
func (h *handlers) paymentsWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Validation("could not read request body"))
		return
	}

	sig := c.GetHeader("X-Dodo-Signature")
	ok, err := h.deps.Payments.VerifyWebhookSignature(body, sig)
	if err != nil || !ok {
		writeError(c, apperr.Unauthorized("invalid webhook signature"))
		return
	}

	var event struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
		AmountSub int64  `json:"amount"` // subunits (paise)
		LoanID    string `json:"loan_id"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(c, apperr.Validation("malformed webhook payload"))
		return
	}

	if event.Status == "completed" && event.LoanID != "" && event.PaymentID != "" {
		if err := h.recordRepayment(c.Request.Context(), event.LoanID, event.PaymentID, float64(event.AmountSub)/100); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"received":   true,
		"request_id": logging.RequestID(c.Request.Context()),
	})
}

// recordRepayment applies one completed payment to loanID. Idempotent
// on paymentID: if a repayment with that ID already exists, it's a
// no-op. Full repayment marks the loan completed and grants a trust
// score bonus; the borrower's gamification stats always advance.
func (h *handlers) recordRepayment(ctx context.Context, loanID, paymentID string, amount float64) error {
	existing, err := h.deps.Store.ListRepayments(ctx, loanID)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "list repayments", err)
	}
	for _, r := range existing {
		if r.ID == paymentID {
			return nil
		}
	}

	loan, err := h.deps.Store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}

	dueBy := loan.DisbursedAt.AddDate(0, 0, loan.TenureWeeks*7)
	onTime := loan.DisbursedAt.IsZero() || time.Now().Before(dueBy) || time.Now().Equal(dueBy)

	repayment := &ports.Repayment{
		ID:     paymentID,
		LoanID: loanID,
		Amount: amount,
		PaidAt: time.Now(),
		OnTime: onTime,
	}
	if err := h.deps.Store.SaveRepayment(ctx, repayment); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "save repayment", err)
	}
	metrics.RepaymentsTotal.WithLabelValues(punctuality(onTime)).Inc()
	if h.deps.Receipts != nil {
		_ = h.deps.Receipts.IssueReceipt(ctx, receipts.IssueRequest{
			Movement:  receipts.MovementRepayment,
			Reference: loan.ID,
			From:      loan.BorrowerAddress,
			To:        loan.CircleID,
			Amount:    strconv.FormatFloat(amount, 'f', 6, 64),
			ServiceID: loan.CircleID,
			Status:    "confirmed",
		})
	}

	all, err := h.deps.Store.ListRepayments(ctx, loanID)
	if err != nil {
		return nil
	}
	var total float64
	for _, r := range all {
		total += r.Amount
	}

	switch {
	case total >= loan.AmountApproved && loan.Status != "completed":
		loan.Status = "completed"
		loan.CompletedAt = time.Now()
		h.adjustTrustScore(ctx, loan.BorrowerAddress, 5, "loan repaid in full")
		h.returnVouchesForLoan(ctx, loanID)
	case loan.Status == "approved" || loan.Status == "disbursed":
		loan.Status = "repaying"
	}
	if err := h.deps.Store.SaveLoan(ctx, loan); err != nil {
		logging.L(ctx).Error("recordRepayment: save loan failed", "loan_id", loanID, "error", err)
	}

	h.applyGamification(ctx, loan.BorrowerAddress, gamification.EventRepayment)
	return nil
}

// adjustTrustScore applies a delta to address's trust score via the
// store's atomic UpdateTrustScore, logging (not returning) failures
// since this is always a side effect of some other operation that has
// already succeeded.
func (h *handlers) adjustTrustScore(ctx context.Context, address string, delta float64, reason string) {
	if _, err := h.deps.Store.UpdateTrustScore(ctx, address, delta, reason); err != nil {
		logging.L(ctx).Error("adjustTrustScore failed", "address", address, "delta", delta, "error", err)
	}
}

func punctuality(onTime bool) string {
	if onTime {
		return "on_time"
	}
	return "late"
}

// returnVouchesForLoan releases every active stake backing loanID back
// to its vouchers once the borrower has repaid in full.
func (h *handlers) returnVouchesForLoan(ctx context.Context, loanID string) {
	vouches, err := h.deps.Store.ListVouchesForLoan(ctx, loanID)
	if err != nil {
		logging.L(ctx).Error("returnVouchesForLoan: list vouches failed", "loan_id", loanID, "error", err)
		return
	}
	for _, v := range vouches {
		if v.Status != "active" {
			continue
		}
		if err := h.deps.Vouches.ReturnVouch(ctx, v.ID); err != nil {
			logging.L(ctx).Error("returnVouchesForLoan: return failed", "vouch_id", v.ID, "error", err)
			continue
		}
		if h.deps.Receipts != nil {
			_ = h.deps.Receipts.IssueReceipt(ctx, receipts.IssueRequest{
				Movement:  receipts.MovementVouchReturn,
				Reference: v.ID,
				From:      v.VouchedAddr,
				To:        v.VoucherAddr,
				Amount:    strconv.FormatFloat(v.Amount, 'f', 6, 64),
				ServiceID: v.CircleID,
				Status:    "confirmed",
			})
		}
	}
}

// defaultLoan marks a loan defaulted, slashes the stakes backing it, and
// penalizes the borrower's trust score. Intended for operational/admin
// use once a loan is past due beyond recovery, not for borrower-facing
// self-service.
func (h *handlers) defaultLoan(c *gin.Context) {
	loanID := c.Param("id")

	loan, err := h.deps.Store.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	if loan.Status == "completed" || loan.Status == "defaulted" {
		writeError(c, apperr.Conflict("loan is already settled"))
		return
	}

	ctx := c.Request.Context()
	vouches, err := h.deps.Store.ListVouchesForLoan(ctx, loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, v := range vouches {
		if v.Status != "active" {
			continue
		}
		if err := h.deps.Vouches.SlashVouch(ctx, v.ID); err != nil {
			logging.L(ctx).Error("defaultLoan: slash failed", "vouch_id", v.ID, "error", err)
			continue
		}
		if h.deps.Receipts != nil {
			_ = h.deps.Receipts.IssueReceipt(ctx, receipts.IssueRequest{
				Movement:  receipts.MovementVouchSlash,
				Reference: v.ID,
				From:      v.VoucherAddr,
				To:        loan.BorrowerAddress,
				Amount:    strconv.FormatFloat(v.Amount, 'f', 6, 64),
				ServiceID: v.CircleID,
				Status:    "confirmed",
			})
		}
	}

	loan.Status = "defaulted"
	if err := h.deps.Store.SaveLoan(ctx, loan); err != nil {
		writeError(c, err)
		return
	}
	h.adjustTrustScore(ctx, loan.BorrowerAddress, -20, "loan defaulted")
	metrics.LoansTotal.WithLabelValues("defaulted").Inc()

	c.JSON(http.StatusOK, gin.H{"success": true, "status": loan.Status})
}

func (h *handlers) governanceVotingPower(ctx context.Context, profile *ports.Profile) int {
	circleCount := 0
	if cs, err := h.deps.Store.ListCirclesForMember(ctx, profile.Address); err == nil {
		circleCount = len(cs)
	} else if profile.CircleID != "" {
		circleCount = 1
	}
	return governance.VotingPower(int(profile.TrustScore), circleCount)
}

// applyGamification loads address's profile, applies event, and persists
// the resulting streak/XP/badge state back onto the profile. Failures
// are logged, not returned: gamification is a side effect of the
// request, never its outcome.
func (h *handlers) applyGamification(ctx context.Context, address string, event gamification.EventKind) {
	profile, err := h.deps.Store.GetProfile(ctx, address)
	if err != nil {
		logging.L(ctx).Error("gamification: load profile failed", "address", address, "error", err)
		return
	}

	stats := gamification.Stats{
		Streak:     profile.Streak,
		LastActive: profile.LastActive,
		XP:         profile.XP,
		Badges:     profile.Badges,
	}
	result := gamification.ApplyEvent(stats, event, time.Now())

	profile.Streak = result.Stats.Streak
	profile.LastActive = result.Stats.LastActive
	profile.XP = result.Stats.XP
	profile.Badges = result.Stats.Badges

	if err := h.deps.Store.SaveProfile(ctx, profile); err != nil {
		logging.L(ctx).Error("gamification: save profile failed", "address", address, "error", err)
	}
}

func adviceOf(d *orchestrator.LoanDecision) string {
	if d.Advice != nil {
		return d.Advice.Recommendation.Advice
	}
	return ""
}

func suggestedActionOf(d *orchestrator.LoanDecision) string {
	if d.Advice != nil {
		return d.Advice.Recommendation.SuggestedAction
	}
	return ""
}

func languageOf(raw string) agentctx.Language {
	switch raw {
	case "hi":
		return agentctx.LanguageHI
	case "ml":
		return agentctx.LanguageML
	default:
		return agentctx.LanguageEN
	}
}

func voiceIDFor(lang agentctx.Language) string {
	return string(lang)
}
