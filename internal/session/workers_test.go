package session

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"venuecore/internal/queue"
)

func TestWorkerPool_DecodesFramesFromConnectionIntoIngress(t *testing.T) {
	ingress := queue.NewIngressQueue(64)
	log := zerolog.New(io.Discard)
	pool := NewWorkerPool(1, ingress, MaxFrame, log)

	var tb tomb.Tomb
	pool.Start(&tb, 1)

	client, server := net.Pipe()
	pool.Submit(server)

	frame := EncodeCancel("AAPL", 55)
	go func() {
		_, _ = client.Write(frame)
	}()

	var cmd queue.Command
	var ok bool
	require.Eventually(t, func() bool {
		cmd, ok = ingress.TryDequeue()
		return ok
	}, time.Second, time.Millisecond)

	assert.Equal(t, queue.CommandCancel, cmd.Type)
	assert.Equal(t, uint64(55), cmd.OrderID)

	tb.Kill(nil)
	_ = client.Close()
}

func TestWorkerPool_SubmitDropsConnectionWhenTombDying(t *testing.T) {
	ingress := queue.NewIngressQueue(64)
	log := zerolog.New(io.Discard)
	pool := NewWorkerPool(1, ingress, MaxFrame, log)

	var tb tomb.Tomb
	pool.Start(&tb, 1)
	tb.Kill(nil)

	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		pool.Submit(server)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after tomb death")
	}

	_ = client.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := client.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe, "the dropped connection must be closed")
}
