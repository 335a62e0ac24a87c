package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/operator"
)

type failingAdapter struct {
	baseAdapter
	calls int
}

func (f *failingAdapter) Name() string { return "failing" }
func (f *failingAdapter) Inject(ctx context.Context, iv operator.Intervention) error {
	f.calls++
	return errors.New("channel unavailable")
}
func (f *failingAdapter) Health(ctx context.Context) error { return errors.New("unhealthy") }

func TestRegistry_FallsThroughOnFailure(t *testing.T) {
	failing := &failingAdapter{}
	canned := NewCannedAdapter()
	r := NewRegistry(failing, canned)

	iv := operator.Intervention{Text: "Heads up, check the failing import.", Kind: event.KindImportMissing}
	err := r.Inject(context.Background(), iv)
	require.NoError(t, err)
	assert.Equal(t, 1, failing.calls)
}

func TestRegistry_ReturnsJoinedErrorWhenAllFail(t *testing.T) {
	failing := &failingAdapter{}
	r := NewRegistry(failing)

	err := r.Inject(context.Background(), operator.Intervention{Text: "x"})
	assert.Error(t, err)
}

func TestRegistry_Health(t *testing.T) {
	failing := &failingAdapter{}
	canned := NewCannedAdapter()
	r := NewRegistry(failing, canned)

	health := r.Health(context.Background())
	assert.Error(t, health["failing"])
	assert.NoError(t, health["canned"])
}
