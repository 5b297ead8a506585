// Package ethereum reads market state from the on-chain registry.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/markets/app"
	"github.com/fd1az/perp-router/business/markets/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/logger"
)

const tracerName = "markets.ethereum"

// Ensure Reader implements InfoReader.
var _ app.InfoReader = (*Reader)(nil)

// Reader calls getGlobalInfo on the registry contract.
type Reader struct {
	caller   ethereum.ContractCaller
	registry common.Address
	abi      abi.ABI
	cb       *circuitbreaker.CircuitBreaker[[]byte]
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	now      func() time.Time
}

// NewReader creates a Reader for the registry at address.
func NewReader(caller ethereum.ContractCaller, registry common.Address, log logger.LoggerInterface) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	return &Reader{
		caller:   caller,
		registry: registry,
		abi:      parsed,
		cb:       circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("markets-registry")),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}, nil
}

// GetGlobalInfo reads one pair and converts fixed point values.
func (r *Reader) GetGlobalInfo(ctx context.Context, account common.Address, pair domain.Pair) (domain.MarketInfo, error) {
	ctx, span := r.tracer.Start(ctx, "markets.get_global_info",
		trace.WithAttributes(
			attribute.String("symbol", pair.Symbol),
			attribute.Int64("pair_id", int64(pair.ID)),
		),
	)
	defer span.End()

	callData, err := r.abi.Pack("getGlobalInfo", account, new(big.Int).SetUint64(pair.ID))
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := r.cb.Execute(func() ([]byte, error) {
		return r.caller.CallContract(ctx, ethereum.CallMsg{
			To:   &r.registry,
			Data: callData,
		}, nil)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.MarketInfo{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("getGlobalInfo(%s)", pair.Symbol)))
	}

	outputs, err := r.abi.Unpack("getGlobalInfo", result)
	if err != nil || len(outputs) != 1 {
		span.SetStatus(codes.Error, "decode failed")
		return domain.MarketInfo{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("decode getGlobalInfo(%s)", pair.Symbol)))
	}
	raw := *abi.ConvertType(outputs[0], new(GlobalInfo)).(*GlobalInfo)

	info := domain.MarketInfo{
		PairID:          pair.ID,
		Symbol:          pair.Symbol,
		FundingRate:     scaled(raw.FundingRate, RateDecimals),
		LongBorrowRate:  scaled(raw.LongBorrowRate, RateDecimals),
		ShortBorrowRate: scaled(raw.ShortBorrowRate, RateDecimals),
		LongOI:          scaled(raw.LongOI, OIDecimals),
		ShortOI:         scaled(raw.ShortOI, OIDecimals),
		MaxLongOI:       scaled(raw.MaxLongOI, OIDecimals),
		MaxShortOI:      scaled(raw.MaxShortOI, OIDecimals),
		LongFee:         scaled(raw.LongFee, FeeDecimals),
		ShortFee:        scaled(raw.ShortFee, FeeDecimals),
		UpdatedAt:       r.now(),
	}

	r.logger.Debug(ctx, "market info read",
		"symbol", pair.Symbol,
		"funding_rate", info.FundingRate.String(),
		"long_fee", info.LongFee.String(),
		"short_fee", info.ShortFee.String(),
	)

	return info, nil
}
