package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/mbd888/saathi/internal/ports"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting the
// same scan helper serve single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*ports.Loan, error) {
	var l ports.Loan
	var decidedAt, disbursedAt, completedAt sql.NullTime
	err := row.Scan(&l.ID, &l.BorrowerAddress, &l.CircleID, &l.AmountRequested, &l.AmountApproved,
		&l.Purpose, &l.Tier, &l.InterestRate, &l.TenureWeeks, &l.EMIAmount, &l.Status,
		&l.BlockchainTxHash, &l.CreatedAt, &decidedAt, &disbursedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	l.DecidedAt = decidedAt.Time
	l.DisbursedAt = disbursedAt.Time
	l.CompletedAt = completedAt.Time
	return &l, nil
}

func scanLoans(rows *sql.Rows) ([]*ports.Loan, error) {
	var out []*ports.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanVouch(row rowScanner) (*ports.Vouch, error) {
	var v ports.Vouch
	err := row.Scan(&v.ID, &v.VoucherAddr, &v.VouchedAddr, &v.CircleID, &v.Level, &v.Amount,
		&v.Status, &v.BlockchainTxHash, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVouches(rows *sql.Rows) ([]*ports.Vouch, error) {
	var out []*ports.Vouch
	for rows.Next() {
		v, err := scanVouch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// circles.members is stored as a comma-joined string rather than a
// Postgres array type to keep the driver (lib/pq) dependency limited
// to plain database/sql value types.
func joinMembers(members []string) string {
	return strings.Join(members, ",")
}

func splitMembers(raw []byte) []string {
	s := string(raw)
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
