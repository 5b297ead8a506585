// Package erc20 reads allowances and encodes approvals for ERC20 tokens.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/execution/app"
	"github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/logger"
)

const tracerName = "execution.erc20"

// ABI is the allowance/approve subset of ERC20.
const ABI = `[
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var _ app.Allowances = (*Tokens)(nil)

// Tokens implements allowance reads over any ContractCaller.
type Tokens struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a Tokens adapter.
func New(caller ethereum.ContractCaller, log logger.LoggerInterface) (*Tokens, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &Tokens{
		caller: caller,
		abi:    parsed,
		cb:     circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("erc20")),
		logger: log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Allowance returns how much spender may pull from owner.
func (t *Tokens) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	ctx, span := t.tracer.Start(ctx, "erc20.allowance",
		trace.WithAttributes(
			attribute.String("token", token.Hex()),
			attribute.String("spender", spender.Hex()),
		),
	)
	defer span.End()

	data, err := t.abi.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allowance: %w", err)
	}

	out, err := t.cb.Execute(func() ([]byte, error) {
		return t.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("allowance(%s) on %s: %v", spender.Hex(), token.Hex(), err)))
	}

	values, err := t.abi.Unpack("allowance", out)
	if err != nil || len(values) != 1 {
		span.SetStatus(codes.Error, "decode failed")
		return nil, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode allowance on "+token.Hex()))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithContext("unexpected allowance type"))
	}

	t.logger.Debug(ctx, "allowance read",
		"token", token.Hex(),
		"spender", spender.Hex(),
		"allowance", amount.String())
	return amount, nil
}

// ApproveTx encodes approve(spender, amount) on token.
func (t *Tokens) ApproveTx(token, spender common.Address, amount *big.Int) (*domain.TxRequest, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("approve amount must be positive"))
	}
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve: %w", err)
	}
	return &domain.TxRequest{To: token, Data: data}, nil
}
