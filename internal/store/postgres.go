package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/ports"
)

// Compile-time check that PostgresStore implements ports.Store.
var _ ports.Store = (*PostgresStore)(nil)

// PostgresStore implements ports.Store backed by PostgreSQL. Schema is
// owned by goose migrations (cmd/migrate), not created here.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) GetProfile(ctx context.Context, address string) (*ports.Profile, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, name, phone_number, preferred_language, trust_score,
			circle_id, upi_handle, streak, last_active, xp, badges, created_at, updated_at
		FROM profiles WHERE address = $1
	`, address)

	var prof ports.Profile
	var lastActive sql.NullTime
	var badges []byte
	err := row.Scan(&prof.Address, &prof.Name, &prof.PhoneNumber, &prof.PreferredLanguage,
		&prof.TrustScore, &prof.CircleID, &prof.UPIHandle, &prof.Streak, &lastActive, &prof.XP, &badges,
		&prof.CreatedAt, &prof.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("profile")
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	prof.LastActive = lastActive.Time
	prof.Badges = splitMembers(badges)
	return &prof, nil
}

func (p *PostgresStore) SaveProfile(ctx context.Context, prof *ports.Profile) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO profiles (address, name, phone_number, preferred_language, trust_score, circle_id,
			upi_handle, streak, last_active, xp, badges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			name = $2, phone_number = $3, preferred_language = $4,
			trust_score = $5, circle_id = $6, upi_handle = $7, streak = $8, last_active = $9,
			xp = $10, badges = $11, updated_at = NOW()
	`, prof.Address, prof.Name, prof.PhoneNumber, prof.PreferredLanguage, prof.TrustScore, prof.CircleID,
		prof.UPIHandle, prof.Streak, nullTime(prof.LastActive), prof.XP, joinMembers(prof.Badges))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetLoan(ctx context.Context, id string) (*ports.Loan, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, borrower_address, circle_id, amount_requested, amount_approved,
			purpose, tier, interest_rate, tenure_weeks, emi_amount, status,
			blockchain_tx_hash, created_at, decided_at, disbursed_at, completed_at
		FROM loans WHERE id = $1
	`, id)

	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("loan")
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func (p *PostgresStore) SaveLoan(ctx context.Context, l *ports.Loan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO loans (id, borrower_address, circle_id, amount_requested, amount_approved,
			purpose, tier, interest_rate, tenure_weeks, emi_amount, status,
			blockchain_tx_hash, created_at, decided_at, disbursed_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			amount_approved = $5, tier = $7, interest_rate = $8, tenure_weeks = $9,
			emi_amount = $10, status = $11, blockchain_tx_hash = $12,
			decided_at = $13, disbursed_at = $14, completed_at = $15
	`, l.ID, l.BorrowerAddress, l.CircleID, l.AmountRequested, l.AmountApproved,
		l.Purpose, l.Tier, l.InterestRate, l.TenureWeeks, l.EMIAmount, l.Status,
		l.BlockchainTxHash, nullTime(l.DecidedAt), nullTime(l.DisbursedAt), nullTime(l.CompletedAt))
	if err != nil {
		return fmt.Errorf("save loan: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListLoansByBorrower(ctx context.Context, address string) ([]*ports.Loan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, borrower_address, circle_id, amount_requested, amount_approved,
			purpose, tier, interest_rate, tenure_weeks, emi_amount, status,
			blockchain_tx_hash, created_at, decided_at, disbursed_at, completed_at
		FROM loans WHERE borrower_address = $1 ORDER BY created_at ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list loans by borrower: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

func (p *PostgresStore) ListPendingLoans(ctx context.Context) ([]*ports.Loan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, borrower_address, circle_id, amount_requested, amount_approved,
			purpose, tier, interest_rate, tenure_weeks, emi_amount, status,
			blockchain_tx_hash, created_at, decided_at, disbursed_at, completed_at
		FROM loans WHERE status = 'voting' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending loans: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

func (p *PostgresStore) GetVouch(ctx context.Context, id string) (*ports.Vouch, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, voucher_address, vouched_address, circle_id, level, amount,
			status, blockchain_tx_hash, created_at
		FROM vouches WHERE id = $1
	`, id)
	v, err := scanVouch(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("vouch")
	}
	if err != nil {
		return nil, fmt.Errorf("get vouch: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) SaveVouch(ctx context.Context, v *ports.Vouch) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vouches (id, voucher_address, vouched_address, circle_id, level, amount, status, blockchain_tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET status = $7, blockchain_tx_hash = $8
	`, v.ID, v.VoucherAddr, v.VouchedAddr, v.CircleID, v.Level, v.Amount, v.Status, v.BlockchainTxHash)
	if err != nil {
		return fmt.Errorf("save vouch: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListVouchesForLoan(ctx context.Context, loanID string) ([]*ports.Vouch, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT v.id, v.voucher_address, v.vouched_address, v.circle_id, v.level, v.amount,
			v.status, v.blockchain_tx_hash, v.created_at
		FROM vouches v JOIN loans l ON l.circle_id = v.circle_id
		WHERE l.id = $1
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list vouches for loan: %w", err)
	}
	defer rows.Close()
	return scanVouches(rows)
}

func (p *PostgresStore) ListVouchesByVoucher(ctx context.Context, address string) ([]*ports.Vouch, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, voucher_address, vouched_address, circle_id, level, amount,
			status, blockchain_tx_hash, created_at
		FROM vouches WHERE vouched_address = $1 ORDER BY created_at ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list vouches by voucher: %w", err)
	}
	defer rows.Close()
	return scanVouches(rows)
}

func (p *PostgresStore) AppendTransaction(ctx context.Context, t *ports.Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, address, amount, reason, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, t.ID, t.Address, t.Amount, t.Reason, t.RefID)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListTransactions(ctx context.Context, address string) ([]*ports.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, amount, reason, ref_id, created_at
		FROM transactions WHERE address = $1 ORDER BY created_at ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*ports.Transaction
	for rows.Next() {
		var t ports.Transaction
		if err := rows.Scan(&t.ID, &t.Address, &t.Amount, &t.Reason, &t.RefID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Balance(ctx context.Context, address string) (float64, error) {
	var balance sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM transactions WHERE address = $1
	`, address).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return balance.Float64, nil
}

func (p *PostgresStore) AppendTrustScoreHistory(ctx context.Context, s *ports.TrustScoreSnapshot) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trust_score_history (address, score, reason, timestamp)
		VALUES ($1, $2, $3, NOW())
	`, s.Address, s.Score, s.Reason)
	if err != nil {
		return fmt.Errorf("append trust score history: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListTrustScoreHistory(ctx context.Context, address string) ([]*ports.TrustScoreSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT address, score, reason, timestamp
		FROM trust_score_history WHERE address = $1 ORDER BY timestamp ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list trust score history: %w", err)
	}
	defer rows.Close()

	var out []*ports.TrustScoreSnapshot
	for rows.Next() {
		var s ports.TrustScoreSnapshot
		if err := rows.Scan(&s.Address, &s.Score, &s.Reason, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trust score snapshot: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateTrustScore(ctx context.Context, address string, delta float64, reason string) (*ports.Profile, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("update trust score: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET trust_score = LEAST(100, GREATEST(0, trust_score + $2)), updated_at = NOW()
		WHERE address = $1
		RETURNING address, name, phone_number, preferred_language, trust_score,
			circle_id, upi_handle, streak, last_active, xp, badges, created_at, updated_at
	`, address, delta)

	var prof ports.Profile
	var lastActive sql.NullTime
	var badges []byte
	err = row.Scan(&prof.Address, &prof.Name, &prof.PhoneNumber, &prof.PreferredLanguage,
		&prof.TrustScore, &prof.CircleID, &prof.UPIHandle, &prof.Streak, &lastActive, &prof.XP, &badges,
		&prof.CreatedAt, &prof.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("profile")
	}
	if err != nil {
		return nil, fmt.Errorf("update trust score: %w", err)
	}
	prof.LastActive = lastActive.Time
	prof.Badges = splitMembers(badges)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trust_score_history (address, score, reason, timestamp)
		VALUES ($1, $2, $3, NOW())
	`, address, prof.TrustScore, reason); err != nil {
		return nil, fmt.Errorf("update trust score: append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update trust score: commit: %w", err)
	}
	return &prof, nil
}

func (p *PostgresStore) ListCirclesForMember(ctx context.Context, address string) ([]*ports.Circle, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, members, created_at FROM circles
		WHERE $1 = ANY(string_to_array(members, ','))
		ORDER BY created_at ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list circles for member: %w", err)
	}
	defer rows.Close()

	var out []*ports.Circle
	for rows.Next() {
		var c ports.Circle
		var members []byte
		if err := rows.Scan(&c.ID, &c.Name, &members, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan circle: %w", err)
		}
		c.Members = splitMembers(members)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CastVote(ctx context.Context, v *ports.LoanVote) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO loan_votes (loan_id, voter_address, tokens, support, cast_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (loan_id, voter_address) DO UPDATE SET tokens = $3, support = $4, cast_at = NOW()
	`, v.LoanID, v.VoterAddr, v.Tokens, v.Support)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListVotes(ctx context.Context, loanID string) ([]*ports.LoanVote, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT loan_id, voter_address, tokens, support, cast_at
		FROM loan_votes WHERE loan_id = $1 ORDER BY cast_at ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*ports.LoanVote
	for rows.Next() {
		var v ports.LoanVote
		if err := rows.Scan(&v.LoanID, &v.VoterAddr, &v.Tokens, &v.Support, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveRepayment(ctx context.Context, r *ports.Repayment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO repayments (id, loan_id, amount, paid_at, on_time)
		VALUES ($1, $2, $3, NOW(), $4)
	`, r.ID, r.LoanID, r.Amount, r.OnTime)
	if err != nil {
		return fmt.Errorf("save repayment: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListRepayments(ctx context.Context, loanID string) ([]*ports.Repayment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, loan_id, amount, paid_at, on_time
		FROM repayments WHERE loan_id = $1 ORDER BY paid_at ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list repayments: %w", err)
	}
	defer rows.Close()

	var out []*ports.Repayment
	for rows.Next() {
		var r ports.Repayment
		if err := rows.Scan(&r.ID, &r.LoanID, &r.Amount, &r.PaidAt, &r.OnTime); err != nil {
			return nil, fmt.Errorf("scan repayment: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveDiaryEntry(ctx context.Context, e *ports.DiaryEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO diary_entries (id, address, type, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, e.ID, e.Address, e.Type, e.Amount, e.Note)
	if err != nil {
		return fmt.Errorf("save diary entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListDiaryEntries(ctx context.Context, address string) ([]*ports.DiaryEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, type, amount, note, created_at
		FROM diary_entries WHERE address = $1 ORDER BY created_at ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list diary entries: %w", err)
	}
	defer rows.Close()

	var out []*ports.DiaryEntry
	for rows.Next() {
		var e ports.DiaryEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Type, &e.Amount, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diary entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetCircle(ctx context.Context, id string) (*ports.Circle, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, members, created_at FROM circles WHERE id = $1
	`, id)

	var c ports.Circle
	var members []byte
	if err := row.Scan(&c.ID, &c.Name, &members, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("circle")
		}
		return nil, fmt.Errorf("get circle: %w", err)
	}
	c.Members = splitMembers(members)
	return &c, nil
}

func (p *PostgresStore) SaveCircle(ctx context.Context, c *ports.Circle) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO circles (id, name, members, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET name = $2, members = $3
	`, c.ID, c.Name, joinMembers(c.Members))
	if err != nil {
		return fmt.Errorf("save circle: %w", err)
	}
	return nil
}
