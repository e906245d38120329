// ABOUTME: Tests for the turn session registry
// ABOUTME: Covers single-turn enforcement, stop idempotency, and release

package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *SessionRegistry {
	return NewSessionRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBeginRejectsSecondTurn(t *testing.T) {
	r := newTestRegistry()

	_, release, err := r.Begin(context.Background(), "conv-1")
	require.NoError(t, err)
	defer release()

	_, _, err = r.Begin(context.Background(), "conv-1")
	assert.ErrorIs(t, err, ErrTurnActive)

	// a different conversation is unaffected
	_, release2, err := r.Begin(context.Background(), "conv-2")
	require.NoError(t, err)
	release2()
}

func TestStopCancelsContext(t *testing.T) {
	r := newTestRegistry()

	ctx, release, err := r.Begin(context.Background(), "conv-1")
	require.NoError(t, err)
	defer release()

	assert.True(t, r.Stop("conv-1"))
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be canceled by stop")
	}

	// stop does not release the slot; the running turn still owns it
	assert.True(t, r.Active("conv-1"))
}

func TestStopWithNoTurnIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.Stop("conv-1"))
	assert.False(t, r.Stop("conv-1"))
}

func TestReleaseFreesSlotAndCancels(t *testing.T) {
	r := newTestRegistry()

	ctx, release, err := r.Begin(context.Background(), "conv-1")
	require.NoError(t, err)
	release()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected release to cancel the turn context")
	}
	assert.False(t, r.Active("conv-1"))

	// slot reusable after release
	_, release2, err := r.Begin(context.Background(), "conv-1")
	require.NoError(t, err)
	release2()
}
