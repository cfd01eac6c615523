package agent_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featden/featd/internal/agent"
	"github.com/featden/featd/internal/model"
)

func TestRegistryLifecycle(t *testing.T) {
	r := agent.NewRegistry()

	s := model.AgentSession{
		ID:           "sess-1",
		NativeID:     "native-1",
		ProviderKind: model.AgentProviderKindFake,
		Status:       model.AgentSessionStatusIdle,
		CreatedAt:    time.Now().UTC(),
	}

	require.NoError(t, r.Put(s))
	assert.Equal(t, 1, r.Len())

	// Double insertion must fail, recreate requires delete first.
	err := r.Put(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	got, err := r.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "native-1", got.NativeID)

	require.NoError(t, r.SetStatus("sess-1", model.AgentSessionStatusBusy))
	got, err = r.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.AgentSessionStatusBusy, got.Status)

	r.Delete("sess-1")
	assert.Equal(t, 0, r.Len())

	_, err = r.Get("sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	// Deleting again is a no-op.
	r.Delete("sess-1")
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := agent.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id := string(rune('a'+n%26)) + "-sess"
			_ = r.Put(model.AgentSession{ID: id, NativeID: id, ProviderKind: model.AgentProviderKindFake})
			_, _ = r.Get(id)
			r.Delete(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
