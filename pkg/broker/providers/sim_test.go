package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"botfleet/pkg/broker"
)

func TestSimProviderOpenAndCloseRoundTrip(t *testing.T) {
	p, err := newSimProvider("cred-1", &broker.CredentialConfig{})
	require.NoError(t, err)

	res, err := p.OpenPosition(context.Background(), "BTCUSD", broker.DirectionBuy, 1.0, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.DealID)

	positions, err := p.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, res.DealID, positions[0].DealID)

	status, err := p.ClosePosition(context.Background(), res.DealID, broker.DirectionBuy, 1.0)
	require.NoError(t, err)
	require.Equal(t, broker.StatusFilled, status)

	positions, err = p.ListPositions(context.Background())
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestSimProviderPartialClose(t *testing.T) {
	p, err := newSimProvider("cred-1", &broker.CredentialConfig{})
	require.NoError(t, err)

	res, err := p.OpenPosition(context.Background(), "ETHUSD", broker.DirectionSell, 10, nil, nil)
	require.NoError(t, err)

	_, err = p.ClosePosition(context.Background(), res.DealID, broker.DirectionSell, 4)
	require.NoError(t, err)

	positions, err := p.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 6.0, positions[0].Quantity)
}
