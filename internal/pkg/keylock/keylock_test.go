package keylock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLockTryLock(t *testing.T) {
	l := New()
	require.True(t, l.TryLock("file-1"))
	require.False(t, l.TryLock("file-1"))
	require.True(t, l.TryLock("file-2"))

	l.Unlock("file-1")
	require.True(t, l.TryLock("file-1"))
}
