// Package wallet signs and sends EIP-1559 transactions from one key.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	bind "github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "execution.wallet"

	// DefaultReceiptTimeout bounds WaitMined.
	DefaultReceiptTimeout = 2 * time.Minute

	// gasHeadroomPct pads the node's gas estimate.
	gasHeadroomPct = 20
)

// Backend is the node surface the wallet needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Wallet sends transactions one at a time so nonces never collide.
type Wallet struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	address        common.Address
	signer         types.Signer
	chainID        *big.Int
	receiptTimeout time.Duration

	mu     sync.Mutex
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a Wallet from a hex private key with or without 0x.
func New(backend Backend, hexKey string, chainID uint64, receiptTimeout time.Duration, log logger.LoggerInterface) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid wallet private key"))
	}
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}
	id := new(big.Int).SetUint64(chainID)
	return &Wallet{
		backend:        backend,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		signer:         types.LatestSignerForChainID(id),
		chainID:        id,
		receiptTimeout: receiptTimeout,
		logger:         log,
		tracer:         otel.Tracer(tracerName),
	}, nil
}

// Address returns the account the wallet signs for.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Send signs req as a dynamic-fee transaction and broadcasts it.
func (w *Wallet) Send(ctx context.Context, req *domain.TxRequest) (common.Hash, error) {
	ctx, span := w.tracer.Start(ctx, "wallet.send",
		trace.WithAttributes(attribute.String("to", req.To.Hex())),
	)
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	to := req.To
	value := req.ValueOrZero()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, w.rpcError(span, err, "pending nonce")
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, w.rpcError(span, err, "gas tip")
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, w.rpcError(span, err, "latest header")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return common.Hash{}, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext(err.Error()))
	}
	gas += gas * gasHeadroomPct / 100

	tx, err := types.SignNewTx(w.key, w.signer, &types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, tx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return common.Hash{}, apperror.New(apperror.CodeTransactionRejected,
			apperror.WithCause(err),
			apperror.WithContext(err.Error()))
	}

	span.SetAttributes(attribute.String("tx_hash", tx.Hash().Hex()), attribute.Int64("nonce", int64(nonce)))
	w.logger.Info(ctx, "transaction sent",
		"hash", tx.Hash().Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas", gas)
	return tx.Hash(), nil
}

// WaitMined blocks until hash has a receipt or the receipt timeout passes.
func (w *Wallet) WaitMined(ctx context.Context, hash common.Hash) (*domain.Receipt, error) {
	ctx, span := w.tracer.Start(ctx, "wallet.wait_mined",
		trace.WithAttributes(attribute.String("tx_hash", hash.Hex())),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, w.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, w.backend, hash)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.New(apperror.CodeTransactionTimeout,
				apperror.WithCause(err),
				apperror.WithContext(hash.Hex()))
		}
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("receipt "+hash.Hex()))
	}

	out := &domain.Receipt{
		Hash:    receipt.TxHash,
		Status:  domain.ReceiptStatus(receipt.Status),
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

func (w *Wallet) rpcError(span trace.Span, err error, what string) error {
	span.SetStatus(codes.Error, err.Error())
	return apperror.New(apperror.CodeEthereumRPCError,
		apperror.WithCause(err),
		apperror.WithContext(what))
}
