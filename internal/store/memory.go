// Package store provides Store port implementations: an in-memory
// store for tests and development, and a Postgres-backed store for
// production (see postgres.go).
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/ports"
)

// MemoryStore is an in-memory implementation of ports.Store for tests
// and local development.
type MemoryStore struct {
	mu sync.RWMutex

	profiles map[string]*ports.Profile
	loans    map[string]*ports.Loan
	vouches  map[string]*ports.Vouch
	circles  map[string]*ports.Circle

	transactions      map[string][]*ports.Transaction
	trustScoreHistory map[string][]*ports.TrustScoreSnapshot
	votesByLoan       map[string][]*ports.LoanVote
	repaymentsByLoan  map[string][]*ports.Repayment
	diaryByAddress    map[string][]*ports.DiaryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:          make(map[string]*ports.Profile),
		loans:             make(map[string]*ports.Loan),
		vouches:           make(map[string]*ports.Vouch),
		circles:           make(map[string]*ports.Circle),
		transactions:      make(map[string][]*ports.Transaction),
		trustScoreHistory: make(map[string][]*ports.TrustScoreSnapshot),
		votesByLoan:       make(map[string][]*ports.LoanVote),
		repaymentsByLoan:  make(map[string][]*ports.Repayment),
		diaryByAddress:    make(map[string][]*ports.DiaryEntry),
	}
}

func key(address string) string { return strings.ToLower(address) }

func (m *MemoryStore) GetProfile(ctx context.Context, address string) (*ports.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[key(address)]
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) SaveProfile(ctx context.Context, p *ports.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.UpdatedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.profiles[key(p.Address)] = &cp
	return nil
}

func (m *MemoryStore) GetLoan(ctx context.Context, id string) (*ports.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, apperr.NotFound("loan")
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) SaveLoan(ctx context.Context, l *ports.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.loans[l.ID] = &cp
	return nil
}

func (m *MemoryStore) ListLoansByBorrower(ctx context.Context, address string) ([]*ports.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ports.Loan
	for _, l := range m.loans {
		if key(l.BorrowerAddress) == key(address) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListPendingLoans(ctx context.Context) ([]*ports.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ports.Loan
	for _, l := range m.loans {
		if l.Status == "voting" {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetVouch(ctx context.Context, id string) (*ports.Vouch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vouches[id]
	if !ok {
		return nil, apperr.NotFound("vouch")
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) SaveVouch(ctx context.Context, v *ports.Vouch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.vouches[v.ID] = &cp
	return nil
}

func (m *MemoryStore) ListVouchesForLoan(ctx context.Context, loanID string) ([]*ports.Vouch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[loanID]
	if !ok {
		return nil, apperr.NotFound("loan")
	}
	var out []*ports.Vouch
	for _, v := range m.vouches {
		if v.CircleID == loan.CircleID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListVouchesByVoucher(ctx context.Context, address string) ([]*ports.Vouch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ports.Vouch
	for _, v := range m.vouches {
		if key(v.VouchedAddr) == key(address) {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AppendTransaction(ctx context.Context, t *ports.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	k := key(t.Address)
	m.transactions[k] = append(m.transactions[k], &cp)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, address string) ([]*ports.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txs := m.transactions[key(address)]
	out := make([]*ports.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (m *MemoryStore) Balance(ctx context.Context, address string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total float64
	for _, t := range m.transactions[key(address)] {
		total += t.Amount
	}
	return total, nil
}

func (m *MemoryStore) AppendTrustScoreHistory(ctx context.Context, s *ports.TrustScoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	k := key(s.Address)
	m.trustScoreHistory[k] = append(m.trustScoreHistory[k], &cp)
	return nil
}

func (m *MemoryStore) ListTrustScoreHistory(ctx context.Context, address string) ([]*ports.TrustScoreSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.trustScoreHistory[key(address)]
	out := make([]*ports.TrustScoreSnapshot, len(snaps))
	copy(out, snaps)
	return out, nil
}

func (m *MemoryStore) UpdateTrustScore(ctx context.Context, address string, delta float64, reason string) (*ports.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(address)
	p, ok := m.profiles[k]
	if !ok {
		return nil, apperr.NotFound("profile")
	}

	cp := *p
	cp.TrustScore = clampTrustScore(cp.TrustScore + delta)
	cp.UpdatedAt = time.Now()
	m.profiles[k] = &cp

	m.trustScoreHistory[k] = append(m.trustScoreHistory[k], &ports.TrustScoreSnapshot{
		Address:   address,
		Score:     cp.TrustScore,
		Reason:    reason,
		Timestamp: cp.UpdatedAt,
	})

	out := cp
	return &out, nil
}

// clampTrustScore keeps the trust score within the [0,100] range the
// agents and governance voting power formula assume.
func clampTrustScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (m *MemoryStore) CastVote(ctx context.Context, v *ports.LoanVote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	if cp.CastAt.IsZero() {
		cp.CastAt = time.Now()
	}
	m.votesByLoan[v.LoanID] = append(m.votesByLoan[v.LoanID], &cp)
	return nil
}

func (m *MemoryStore) ListVotes(ctx context.Context, loanID string) ([]*ports.LoanVote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	votes := m.votesByLoan[loanID]
	out := make([]*ports.LoanVote, len(votes))
	copy(out, votes)
	return out, nil
}

func (m *MemoryStore) SaveRepayment(ctx context.Context, r *ports.Repayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.PaidAt.IsZero() {
		cp.PaidAt = time.Now()
	}
	m.repaymentsByLoan[r.LoanID] = append(m.repaymentsByLoan[r.LoanID], &cp)
	return nil
}

func (m *MemoryStore) ListRepayments(ctx context.Context, loanID string) ([]*ports.Repayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reps := m.repaymentsByLoan[loanID]
	out := make([]*ports.Repayment, len(reps))
	copy(out, reps)
	return out, nil
}

func (m *MemoryStore) SaveDiaryEntry(ctx context.Context, e *ports.DiaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	k := key(e.Address)
	m.diaryByAddress[k] = append(m.diaryByAddress[k], &cp)
	return nil
}

func (m *MemoryStore) ListDiaryEntries(ctx context.Context, address string) ([]*ports.DiaryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.diaryByAddress[key(address)]
	out := make([]*ports.DiaryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) GetCircle(ctx context.Context, id string) (*ports.Circle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.circles[id]
	if !ok {
		return nil, apperr.NotFound("circle")
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) SaveCircle(ctx context.Context, c *ports.Circle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.circles[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListCirclesForMember(ctx context.Context, address string) ([]*ports.Circle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ports.Circle
	for _, c := range m.circles {
		for _, member := range c.Members {
			if key(member) == key(address) {
				cp := *c
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
