package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubBackend_ReturnsCannedResponsePerPhase(t *testing.T) {
	stub := NewStub()
	stub.Responses["requirements"] = Result{RawText: "# Requirements\n", Provider: "stub"}

	res, err := stub.Invoke(context.Background(), Invocation{PhaseID: "requirements"})
	require.NoError(t, err)
	assert.Equal(t, "# Requirements\n", res.RawText)
}

func TestStubBackend_UnregisteredPhaseErrors(t *testing.T) {
	stub := NewStub()
	_, err := stub.Invoke(context.Background(), Invocation{PhaseID: "design"})
	assert.Error(t, err)
}

func TestStubBackend_SleepHonorsContextCancellation(t *testing.T) {
	stub := NewStub()
	stub.Responses["review"] = Result{RawText: "ok"}
	stub.Sleep = func(ctx context.Context, phaseID string) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stub.Invoke(ctx, Invocation{PhaseID: "review"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
