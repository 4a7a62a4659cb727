package checkpoint

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreKeepsCopies(t *testing.T) {
	store := NewMemoryStore()

	fresh, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, fresh.Completed())

	s := NewState()
	s.MarkCompleted("1301", OutcomeBenefitFound)
	require.NoError(t, store.Save(s))

	// later changes to the saved state do not leak into the store
	s.MarkCompleted("7203", OutcomeNoBenefit)
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s.RunID, loaded.RunID)
	assert.Equal(t, []string{"1301"}, loaded.Completed())

	require.NoError(t, store.Remove())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.Completed())
	assert.Error(t, store.Save(nil))
}

func TestMemoryStoreBacksTracker(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, NewState(), 2, zerolog.Nop())
	tr.MarkCompleted("1301", OutcomeBenefitFound)
	tr.MarkFailed("1332")
	require.NoError(t, tr.Close())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1301"}, loaded.Completed())
	assert.Equal(t, []string{"1332"}, loaded.Failed())
	assert.True(t, loaded.HasBenefit("1301"))
}
