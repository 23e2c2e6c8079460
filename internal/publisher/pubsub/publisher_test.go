package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	p := New(nil)
	_, err := p.Publish(context.Background(), "products", map[string]string{"k": "v"})
	require.Error(t, err)
	require.NoError(t, p.Close())
}

func TestConnectRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), "")
	require.Error(t, err)
}
