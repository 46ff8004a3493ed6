package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/syncd/internal/application/optimistic"
	"github.com/erp/syncd/internal/domain/catalog"
	"github.com/erp/syncd/internal/domain/inventory"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	catA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	catB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	catC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func categoryEnvelope(action shared.Action, seq uint64, payload string) Envelope {
	return Envelope{
		Domain:     shared.DomainCategory,
		Action:     action,
		Sequence:   seq,
		Payload:    json.RawMessage(payload),
		Event:      "category:" + string(action),
		ReceivedAt: time.Now(),
	}
}

func TestCache_Snapshot(t *testing.T) {
	t.Run("snapshot replaces the cache wholesale", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionSnapshot, 1,
			`[{"id":"`+catA.String()+`","name":"Drinks"},{"id":"`+catB.String()+`","name":"Snacks"}]`))
		require.NoError(t, err)
		require.Equal(t, 2, c.Len())

		// A later snapshot without A drops A; an entity absent from a
		// snapshot is deleted.
		_, err = c.Apply(categoryEnvelope(shared.ActionSnapshot, 2,
			`[{"id":"`+catB.String()+`","name":"Snacks"},{"id":"`+catC.String()+`","name":"Frozen"}]`))
		require.NoError(t, err)

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, uint64(2), c.LastAppliedSequence())

		ids := make(map[string]bool)
		for _, cat := range c.Snapshot() {
			ids[cat.EntityID()] = true
		}
		assert.False(t, ids[catA.String()])
		assert.True(t, ids[catB.String()])
		assert.True(t, ids[catC.String()])
	})

	t.Run("snapshot entities are ordered by sort order", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionSnapshot, 1,
			`[{"id":"`+catA.String()+`","name":"Drinks","sort_order":2},`+
				`{"id":"`+catB.String()+`","name":"Snacks","sort_order":1}]`))
		require.NoError(t, err)

		snapshot := c.Snapshot()
		require.Len(t, snapshot, 2)
		assert.Equal(t, "Snacks", snapshot[0].Name)
		assert.Equal(t, "Drinks", snapshot[1].Name)
	})
}

func TestCache_Incremental(t *testing.T) {
	t.Run("created and updated upsert", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionCreated, 1,
			`{"id":"`+catA.String()+`","name":"Drinks"}`))
		require.NoError(t, err)
		require.Equal(t, 1, c.Len())

		desc, err := c.Apply(categoryEnvelope(shared.ActionUpdated, 2,
			`{"id":"`+catA.String()+`","name":"Beverages"}`))
		require.NoError(t, err)

		assert.Equal(t, catA.String(), desc.EntityID)
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, "Beverages", c.Snapshot()[0].Name)
	})

	t.Run("deleted removes the entity", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionCreated, 1,
			`{"id":"`+catA.String()+`","name":"Drinks"}`))
		require.NoError(t, err)

		_, err = c.Apply(categoryEnvelope(shared.ActionDeleted, 2,
			`{"id":"`+catA.String()+`"}`))
		require.NoError(t, err)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("deleting an absent entity is a no-op", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionDeleted, 1,
			`{"id":"`+catA.String()+`"}`))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), c.LastAppliedSequence())
	})

	t.Run("malformed payload leaves the cache untouched", func(t *testing.T) {
		c := NewCategoryCache()

		_, err := c.Apply(categoryEnvelope(shared.ActionCreated, 1,
			`{"id":"`+catA.String()+`","name":"Drinks"}`))
		require.NoError(t, err)

		_, err = c.Apply(categoryEnvelope(shared.ActionUpdated, 2,
			`{"id":"not-a-uuid","name":"Broken"}`))
		require.Error(t, err)

		var decodeErr *shared.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, "Drinks", c.Snapshot()[0].Name)
		assert.Equal(t, uint64(1), c.LastAppliedSequence())
	})
}

func TestCache_StockMerge(t *testing.T) {
	c := NewStockCache()

	snapshot := Envelope{
		Domain:   shared.DomainStock,
		Action:   shared.ActionSnapshot,
		Sequence: 1,
		Payload:  json.RawMessage(`[{"entityId":"p-1","product_name":"Widget","quantity":"10","min_stock":"3"}]`),
	}
	_, err := c.Apply(snapshot)
	require.NoError(t, err)

	// The delta carries only the new quantity; name and threshold survive.
	delta := Envelope{
		Domain:   shared.DomainStock,
		Action:   shared.ActionUpdated,
		Sequence: 2,
		Payload:  json.RawMessage(`{"entityId":"p-1","quantity":"2"}`),
	}
	_, err = c.Apply(delta)
	require.NoError(t, err)

	levels := c.Snapshot()
	require.Len(t, levels, 1)
	assert.Equal(t, "Widget", levels[0].ProductName)
	assert.True(t, levels[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, levels[0].MinStock.Equal(decimal.NewFromInt(3)))
	assert.True(t, levels[0].LowStock())
}

func TestCache_OptimisticIntegration(t *testing.T) {
	newTracker := func(t *testing.T) *optimistic.Tracker {
		tracker := optimistic.NewTracker(optimistic.WithTimeout(time.Minute))
		t.Cleanup(func() { _ = tracker.Close() })
		return tracker
	}

	t.Run("matching push confirms the pending write", func(t *testing.T) {
		tracker := newTracker(t)
		var conflicts []shared.ChangeDescriptor
		c := NewCategoryCache(
			WithTracker[catalog.Category](tracker),
			WithConflictHandler[catalog.Category](func(desc shared.ChangeDescriptor) {
				conflicts = append(conflicts, desc)
			}),
		)

		tracker.BeginWrite(shared.DomainCategory, catA.String(), map[string]any{"name": "Beverages"})

		_, err := c.Apply(categoryEnvelope(shared.ActionUpdated, 1,
			`{"id":"`+catA.String()+`","name":"Beverages"}`))
		require.NoError(t, err)

		assert.Empty(t, conflicts)
		assert.False(t, tracker.IsPending(shared.DomainCategory, catA.String()))
	})

	t.Run("mismatching push fires the conflict handler", func(t *testing.T) {
		tracker := newTracker(t)
		var conflicts []shared.ChangeDescriptor
		c := NewCategoryCache(
			WithTracker[catalog.Category](tracker),
			WithConflictHandler[catalog.Category](func(desc shared.ChangeDescriptor) {
				conflicts = append(conflicts, desc)
			}),
		)

		tracker.BeginWrite(shared.DomainCategory, catA.String(), map[string]any{"name": "Beverages"})

		// Another actor renamed the category; server truth wins.
		_, err := c.Apply(categoryEnvelope(shared.ActionUpdated, 1,
			`{"id":"`+catA.String()+`","name":"Liquids"}`))
		require.NoError(t, err)

		require.Len(t, conflicts, 1)
		assert.Equal(t, catA.String(), conflicts[0].EntityID)
		assert.False(t, tracker.IsPending(shared.DomainCategory, catA.String()))
		assert.Equal(t, "Liquids", c.Snapshot()[0].Name)
	})

	t.Run("delete discards the pending write", func(t *testing.T) {
		tracker := newTracker(t)
		c := NewCategoryCache(WithTracker[catalog.Category](tracker))

		tracker.BeginWrite(shared.DomainCategory, catA.String(), map[string]any{"name": "X"})

		_, err := c.Apply(categoryEnvelope(shared.ActionDeleted, 1,
			`{"id":"`+catA.String()+`"}`))
		require.NoError(t, err)
		assert.False(t, tracker.IsPending(shared.DomainCategory, catA.String()))
	})

	t.Run("entries are annotated with pending status", func(t *testing.T) {
		tracker := newTracker(t)
		c := NewCategoryCache(WithTracker[catalog.Category](tracker))

		_, err := c.Apply(categoryEnvelope(shared.ActionSnapshot, 1,
			`[{"id":"`+catA.String()+`","name":"Drinks"},{"id":"`+catB.String()+`","name":"Snacks"}]`))
		require.NoError(t, err)

		tracker.BeginWrite(shared.DomainCategory, catA.String(), map[string]any{"name": "Beverages"})

		entries := c.Entries()
		require.Len(t, entries, 2)
		byID := make(map[string]EntryView)
		for _, e := range entries {
			byID[e.Entity.(catalog.Category).EntityID()] = e
		}
		assert.True(t, byID[catA.String()].Pending)
		assert.False(t, byID[catB.String()].Pending)
	})
}

func TestCache_Listeners(t *testing.T) {
	c := NewCategoryCache()

	var got []shared.ChangeDescriptor
	unsub := c.Subscribe(func(desc shared.ChangeDescriptor) {
		got = append(got, desc)
	})

	_, err := c.Apply(categoryEnvelope(shared.ActionCreated, 1,
		`{"id":"`+catA.String()+`","name":"Drinks"}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.ActionCreated, got[0].Action)

	unsub()
	_, err = c.Apply(categoryEnvelope(shared.ActionCreated, 2,
		`{"id":"`+catB.String()+`","name":"Snacks"}`))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCache_UnknownAction(t *testing.T) {
	c := NewCategoryCache()
	env := categoryEnvelope("archived", 1, `{"id":"`+catA.String()+`"}`)

	_, err := c.Apply(env)
	assert.ErrorIs(t, err, shared.ErrUnknownAction)
}

var _ View = (*Cache[inventory.StockLevel])(nil)
