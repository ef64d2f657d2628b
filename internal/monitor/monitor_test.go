package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_EmptyURLReturnsNilMonitor(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestNilMonitor_MethodsAreNoOps(t *testing.T) {
	var m *Monitor
	require.NoError(t, m.Report(context.Background(), "download", 3, 10))
	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap)
	require.NoError(t, m.Close())
}

func TestNew_UnparseableURL(t *testing.T) {
	_, err := New("not a redis url::")
	require.Error(t, err)
}
