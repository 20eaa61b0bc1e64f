package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/research-chat/internal/observe"
	"github.com/suPer8Hu/research-chat/internal/store/rabbitmq"
)

type sink struct {
	recs []observe.Record
}

func (s *sink) Report(_ context.Context, rec observe.Record) { s.recs = append(s.recs, rec) }

func TestRecordHandler(t *testing.T) {
	s := &sink{}
	h := recordHandler(s)

	err := h(context.Background(), []byte(`{"kind":"TRANSPORT_FAILURE","reason":"generate","session_id":"abc","error":"upstream 503"}`))
	require.NoError(t, err)
	require.Len(t, s.recs, 1)
	require.Equal(t, "TRANSPORT_FAILURE", s.recs[0].Kind)
	require.Equal(t, "abc", s.recs[0].SessionID)

	err = h(context.Background(), []byte(`{not json`))
	require.True(t, errors.Is(err, rabbitmq.ErrMalformed))

	err = h(context.Background(), []byte(`{"reason":"x"}`))
	require.True(t, errors.Is(err, rabbitmq.ErrMalformed))
	require.Len(t, s.recs, 1)
}

func TestRecordHandler_ShutdownIsTransient(t *testing.T) {
	s := &sink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := recordHandler(s)(ctx, []byte(`{"kind":"TRANSPORT_FAILURE"}`))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, rabbitmq.ErrMalformed))
	require.Empty(t, s.recs)
}
