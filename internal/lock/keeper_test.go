package lock_test

import (
	"testing"
	"time"

	"github.com/jvs-project/taskstate/internal/lock"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeeper_RenewsPastTTL(t *testing.T) {
	dir := t.TempDir()
	mgr := lock.NewManager(dir, model.LockPolicy{LeaseTTL: 60 * time.Millisecond})

	rec, err := mgr.Acquire("build", "run")
	require.NoError(t, err)
	keeper := mgr.Keep("build", rec.HolderNonce)
	defer keeper.Stop()

	time.Sleep(200 * time.Millisecond)

	other := lock.NewManager(dir, model.LockPolicy{LeaseTTL: 60 * time.Millisecond})
	_, err = other.Acquire("build", "second process")
	require.ErrorIs(t, err, errclass.ErrLockConflict)
	assert.NoError(t, keeper.Held())
}

func TestKeeper_HeldReportsTakeover(t *testing.T) {
	dir := t.TempDir()
	mgr := lock.NewManager(dir, model.LockPolicy{LeaseTTL: time.Minute})

	rec, err := mgr.Acquire("build", "run")
	require.NoError(t, err)
	keeper := mgr.Keep("build", rec.HolderNonce)
	defer keeper.Stop()

	other := lock.NewManager(dir, model.LockPolicy{LeaseTTL: time.Minute})
	require.NoError(t, other.Release("build", rec.HolderNonce))
	_, err = other.Acquire("build", "second process")
	require.NoError(t, err)

	require.ErrorIs(t, keeper.Held(), errclass.ErrLockNotHeld)
}

func TestKeeper_StopIsIdempotent(t *testing.T) {
	mgr := lock.NewManager(t.TempDir(), model.LockPolicy{LeaseTTL: time.Minute})
	rec, err := mgr.Acquire("build", "run")
	require.NoError(t, err)

	keeper := mgr.Keep("build", rec.HolderNonce)
	keeper.Stop()
	keeper.Stop()
	assert.NoError(t, keeper.Held())
}

func TestManager_Check(t *testing.T) {
	mgr := lock.NewManager(t.TempDir(), model.LockPolicy{LeaseTTL: 30 * time.Millisecond})

	require.ErrorIs(t, mgr.Check("build", "nonce"), errclass.ErrLockNotHeld)

	rec, err := mgr.Acquire("build", "run")
	require.NoError(t, err)
	assert.NoError(t, mgr.Check("build", rec.HolderNonce))
	assert.ErrorIs(t, mgr.Check("build", "wrong-nonce"), errclass.ErrLockNotHeld)

	time.Sleep(60 * time.Millisecond)
	assert.ErrorIs(t, mgr.Check("build", rec.HolderNonce), errclass.ErrLockNotHeld)
}
