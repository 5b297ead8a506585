// Package ethereum adapts go-ethereum clients to the chain ports.
package ethereum

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/perp-router/business/chain/app"
	"github.com/fd1az/perp-router/internal/apperror"
)

const (
	tracerName = "chain"
	meterName  = "chain"
)

// WebSocketDialer dials url for each head subscription. An empty url
// returns nil, leaving the tracker on polling.
func WebSocketDialer(url string) app.StreamDialer {
	if url == "" {
		return nil
	}
	return func(ctx context.Context) (app.HeadStream, func(), error) {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("dial websocket"))
		}
		return client, client.Close, nil
	}
}
