package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpquic-rl/pathsched/sched/internal/testutil"
)

func TestTelemetryChannel_Poll_QueuesValidRecords(t *testing.T) {
	// GIVEN two valid records and one malformed message
	sock := &fakeSocket{}
	sock.push(testutil.CompletionFrames(t, "1", "/a", 0.2))
	sock.push([]string{"2", `{"StreamID":"2"}`})
	sock.push(testutil.CompletionFrames(t, "3", "/b", 0.4))
	inst := &countingInstrumentation{}
	ch := NewTelemetryChannel(sock, testConfig(), inst)

	// WHEN polled three times
	for i := 0; i < 3; i++ {
		_, err := ch.Poll()
		require.NoError(t, err)
	}

	// THEN the valid records are queued in arrival order
	assert.Equal(t, 2, ch.Len())
	assert.Equal(t, 1, inst.get("telemetry/malformed"))
	recs := ch.DrainAndClear()
	require.Len(t, recs, 2)
	assert.Equal(t, "/a", recs[0].RequestPath)
	assert.Equal(t, "/b", recs[1].RequestPath)

	// AND the queue is empty after draining
	assert.Equal(t, 0, ch.Len())
	assert.Empty(t, ch.DrainAndClear())
}

func TestTelemetryChannel_Run_CollectsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sock := &fakeSocket{pollErr: assert.AnError}
	for i := 0; i < 5; i++ {
		sock.push(testutil.CompletionFrames(t, "s", "/p", float64(i)))
	}
	ch := NewTelemetryChannel(sock, testConfig(), nil)
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	assert.Eventually(t, func() bool { return ch.Len() == 5 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry channel did not stop")
	}
	assert.Equal(t, 1, sock.resetCount(), "poll error must reset the socket")
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := NewBackoff(time.Millisecond, 4*time.Millisecond)
	assert.Equal(t, time.Millisecond, b.Next())
	assert.Equal(t, 2*time.Millisecond, b.Next())
	assert.Equal(t, 4*time.Millisecond, b.Next())
	assert.Equal(t, 4*time.Millisecond, b.Next())
	b.Reset()
	assert.Equal(t, time.Millisecond, b.Next())
}

func TestDefaultConfig_PollsInTensOfMilliseconds(t *testing.T) {
	cfg := DefaultConfig()

	assert.Positive(t, cfg.PollTimeout)
	assert.LessOrEqual(t, cfg.PollTimeout, 50*time.Millisecond, "listeners must notice shutdown promptly")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DecisionEndpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxReconnectDelay = cfg.ReconnectDelay / 2
	assert.Error(t, cfg.Validate())
}
