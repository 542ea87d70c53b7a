package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordOutcomeUpserts(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()

	notif := &types.Notification{Code: "abc", Platform: types.PlatformAndroid, StartTime: 1}
	require.NoError(t, l.RecordOutcome(ctx, notif))

	notif.MsgPublic = "build failed"
	notif.MsgInternal = "gradle exit 1"
	require.NoError(t, l.RecordOutcome(ctx, notif))

	var msgPublic string
	row := l.db.QueryRowContext(ctx, `SELECT msg_public FROM job_outcomes WHERE code = ?`, "abc")
	require.NoError(t, row.Scan(&msgPublic))
	assert.Equal(t, "build failed", msgPublic)
}

func TestRecordDiscardAndListDiscarded(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()

	n1 := &types.Notification{Code: "a", Platform: types.PlatformAndroid, StartTime: 1, MsgPublic: "oops"}
	n2 := &types.Notification{Code: "b", Platform: types.PlatformIOS, StartTime: 2, MsgPublic: "nope"}
	require.NoError(t, l.RecordDiscard(ctx, n1, 20))
	require.NoError(t, l.RecordDiscard(ctx, n2, 21))

	discarded, err := l.ListDiscarded(ctx)
	require.NoError(t, err)
	require.Len(t, discarded, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{discarded[0].Code, discarded[1].Code})
}

func TestListDiscardedEmpty(t *testing.T) {
	l := openTestLedger(t)
	discarded, err := l.ListDiscarded(t.Context())
	require.NoError(t, err)
	assert.Empty(t, discarded)
}
