package reaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)

func ptr(t Type) *Type { return &t }

func ev(rowID int64, code int, typ *Type, sender string, minute int) Event {
	return Event{
		RowID:               rowID,
		Code:                code,
		Type:                typ,
		IsAdd:               IsAdd(code),
		Sender:              sender,
		Date:                base.Add(time.Duration(minute) * time.Minute),
		AssociatedMessageID: 1,
	}
}

var (
	love = ptr(Type{Kind: KindLove})
	like = ptr(Type{Kind: KindLike})
)

func TestReconcile_Empty(t *testing.T) {
	assert.Empty(t, Reconcile(nil))
}

func TestReconcile_Idempotent(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "+15551234567", 1),
		ev(10, CodeLove, love, "+15551234567", 1),
	})
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].RowID)
}

func TestReconcile_RemoveOnlyMatchingType(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLike, like, "alice", 2),
		ev(12, CodeLove+RemoveOffset, love, "alice", 3),
	})
	require.Len(t, got, 1)
	assert.Equal(t, KindLike, got[0].Type.Kind)
	assert.Equal(t, int64(11), got[0].RowID)
}

func TestReconcile_ReAddAfterRemove(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLove+RemoveOffset, love, "alice", 2),
		ev(12, CodeLove, love, "alice", 3),
	})
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0].RowID)
	assert.Equal(t, base.Add(3*time.Minute), got[0].Date)
}

func TestReconcile_AddRemoveLeavesNothing(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLove+RemoveOffset, love, "alice", 2),
	})
	assert.Empty(t, got)
}

func TestReconcile_ReplaceInPlace(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLike, like, "bob", 2),
		ev(12, CodeLove, love, "alice", 3),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Sender)
	assert.Equal(t, int64(12), got[0].RowID)
	assert.Equal(t, "bob", got[1].Sender)
}

func TestReconcile_KeySeparatesSenderAndFromMe(t *testing.T) {
	mine := ev(12, CodeLove, love, "", 3)
	mine.IsFromMe = true
	got := Reconcile([]Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLove, love, "bob", 2),
		mine,
	})
	assert.Len(t, got, 3)
}

func TestReconcile_OrderSensitive(t *testing.T) {
	events := []Event{
		ev(10, CodeLove, love, "alice", 1),
		ev(11, CodeLove+RemoveOffset, love, "alice", 2),
	}
	assert.Empty(t, Reconcile(events))

	reversed := []Event{events[1], events[0]}
	assert.Len(t, Reconcile(reversed), 1)
}

func TestReconcile_CustomExactRemove(t *testing.T) {
	party := ptr(Custom("🎉"))
	fire := ptr(Custom("🔥"))
	got := Reconcile([]Event{
		ev(10, CodeCustom, party, "alice", 1),
		ev(11, CodeCustom, fire, "alice", 2),
		ev(12, CodeCustomRemove, fire, "alice", 3),
	})
	require.Len(t, got, 1)
	assert.Equal(t, Custom("🎉"), got[0].Type)
}

func TestReconcile_CustomRemoveFallback(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeCustom, ptr(Custom("🎉")), "alice", 1),
		ev(11, CodeCustom, ptr(Custom("🔥")), "bob", 2),
		ev(12, CodeLike, like, "alice", 3),
		// Emoji not recoverable from the removal text.
		ev(13, CodeCustomRemove, nil, "alice", 4),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Sender)
	assert.Equal(t, KindLike, got[1].Type.Kind)
}

func TestReconcile_CustomRemoveFallbackMismatchedEmoji(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeCustom, ptr(Custom("🎉")), "alice", 1),
		ev(11, CodeCustomRemove, ptr(Custom("🥳")), "alice", 2),
	})
	assert.Empty(t, got)
}

func TestReconcile_NonCustomRemoveWithoutMatch(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeCustom, ptr(Custom("🎉")), "alice", 1),
		ev(11, CodeLove+RemoveOffset, love, "alice", 2),
	})
	assert.Len(t, got, 1)
}

func TestReconcile_UnknownKindDropped(t *testing.T) {
	got := Reconcile([]Event{
		ev(10, CodeCustom, nil, "alice", 1),
		ev(11, CodeLove+RemoveOffset, nil, "alice", 2),
	})
	assert.Empty(t, got)
}

func TestReconciler_ReindexAfterDelete(t *testing.T) {
	r := NewReconciler()
	r.Apply(ev(10, CodeLove, love, "alice", 1))
	r.Apply(ev(11, CodeLove, love, "bob", 2))
	r.Apply(ev(12, CodeLove, love, "carol", 3))
	r.Apply(ev(13, CodeLove+RemoveOffset, love, "alice", 4))
	r.Apply(ev(14, CodeLove, love, "carol", 5))

	got := r.Reactions()
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Sender)
	assert.Equal(t, "carol", got[1].Sender)
	assert.Equal(t, int64(14), got[1].RowID)
}
