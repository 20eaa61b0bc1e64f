package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/research-chat/internal/store"
)

func TestStore_SaveLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Load(ctx, "k")
	require.ErrorIs(t, err, store.ErrNotFound)

	data := []byte(`[{"id":"a"}]`)
	require.NoError(t, s.Save(ctx, "k", data))
	data[0] = 'X'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `[{"id":"a"}]`, string(got), "saved blob must not alias the caller's slice")
	require.Equal(t, 1, s.Saves())
}
