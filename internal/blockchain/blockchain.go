// Package blockchain notarizes credit-engine events (loan decisions,
// repayments, vouch stakes, trust score changes) on-chain by writing a
// content hash to a minimal notary contract. It never blocks the
// request path — callers invoke it via internal/tasks fire-and-forget.
package blockchain

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/saathi/internal/ports"
)

var (
	ErrInvalidPrivateKey = errors.New("blockchain: invalid private key")
	ErrRPCConnection     = errors.New("blockchain: RPC connection failed")
)

// NotarizeError wraps a failed on-chain write with the operation that
// produced it and, if one was assigned before the failure, a tx hash.
type NotarizeError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *NotarizeError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("blockchain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("blockchain: %s failed: %v", e.Op, e.Err)
}

func (e *NotarizeError) Unwrap() error { return e.Err }

// notaryABI is the minimal interface of the on-chain notary contract:
// one method that records a record hash against an on-chain log.
const notaryABI = `[
	{"constant":false,"inputs":[{"name":"recordHash","type":"bytes32"}],"name":"notarize","outputs":[],"type":"function"}
]`

const defaultGasLimit = uint64(80000)

// EthClient abstracts go-ethereum's client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Config configures a Notary.
type Config struct {
	RPCURL         string
	PrivateKey     string // hex, no 0x prefix
	ChainID        int64
	NotaryContract string
}

// Option configures a Notary.
type Option func(*Notary)

// WithClient injects a fake EthClient for tests.
func WithClient(client EthClient) Option {
	return func(n *Notary) { n.client = client }
}

// Notary is the ethclient-backed implementation of ports.Blockchain.
type Notary struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	contract   common.Address
	notaryABI  abi.ABI
}

var _ ports.Blockchain = (*Notary)(nil)

// New dials the configured RPC endpoint and returns a ready Notary.
func New(cfg Config, opts ...Option) (*Notary, error) {
	if cfg.PrivateKey == "" {
		return nil, ErrInvalidPrivateKey
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(notaryABI))
	if err != nil {
		return nil, fmt.Errorf("parse notary abi: %w", err)
	}

	n := &Notary{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
		chainID:    big.NewInt(cfg.ChainID),
		contract:   common.HexToAddress(cfg.NotaryContract),
		notaryABI:  parsedABI,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		n.client = client
	}
	return n, nil
}

func (n *Notary) notarize(ctx context.Context, op string, recordHash [32]byte) (string, error) {
	data, err := n.notaryABI.Pack("notarize", recordHash)
	if err != nil {
		return "", &NotarizeError{Op: op, Err: err}
	}

	nonce, err := n.client.PendingNonceAt(ctx, n.address)
	if err != nil {
		return "", &NotarizeError{Op: op, Err: err}
	}
	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &NotarizeError{Op: op, Err: err}
	}
	gasLimit, err := n.client.EstimateGas(ctx, ethereum.CallMsg{
		From: n.address,
		To:   &n.contract,
		Data: data,
	})
	if err != nil {
		gasLimit = defaultGasLimit
	}

	tx := types.NewTransaction(nonce, n.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(n.chainID), n.privateKey)
	if err != nil {
		return "", &NotarizeError{Op: op, Err: err}
	}
	if err := n.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &NotarizeError{Op: op, TxHash: signedTx.Hash().Hex(), Err: err}
	}
	return signedTx.Hash().Hex(), nil
}

func recordHash(parts ...string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(parts, "|") + "|" + time.Now().UTC().Format(time.RFC3339Nano)))
}

func (n *Notary) RecordLoan(ctx context.Context, loanID, borrowerAddr string, amount float64) (string, error) {
	return n.notarize(ctx, "record_loan", recordHash("loan", loanID, borrowerAddr, fmt.Sprintf("%.2f", amount)))
}

func (n *Notary) RecordRepayment(ctx context.Context, loanID string, amount float64) (string, error) {
	return n.notarize(ctx, "record_repayment", recordHash("repayment", loanID, fmt.Sprintf("%.2f", amount)))
}

func (n *Notary) StakeForVouch(ctx context.Context, vouchID, voucherAddr string, amount float64) (string, error) {
	return n.notarize(ctx, "stake_vouch", recordHash("vouch", vouchID, voucherAddr, fmt.Sprintf("%.2f", amount)))
}

func (n *Notary) UpdateTrustScoreOnChain(ctx context.Context, address string, score float64) (string, error) {
	return n.notarize(ctx, "update_trust_score", recordHash("trust_score", address, fmt.Sprintf("%.2f", score)))
}

func (n *Notary) Close() error {
	if n.client != nil {
		n.client.Close()
	}
	return nil
}
