package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitOTelNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := InitOTel(context.Background(), TelemetryOptions{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
