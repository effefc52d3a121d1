package session

import (
	"net"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"venuecore/internal/queue"
)

// WorkerPool runs a fixed number of parser workers under a tomb.Tomb
// supervisor, adapted from the teacher's worker pool (internal/worker.go):
// each worker owns one connection's Decoder and feeds decoded commands into
// the shared ingress queue via the multi-producer path, since parser_workers
// may be > 1.
type WorkerPool struct {
	t        *tomb.Tomb
	ingress  *queue.IngressQueue
	maxFrame int
	log      zerolog.Logger

	conns chan net.Conn
}

// NewWorkerPool constructs a pool whose workers each read connections off
// an internal channel and decode them until the connection closes or the
// tomb is dying. size is not used here; the number of workers is the size
// passed to Start.
func NewWorkerPool(size int, ingress *queue.IngressQueue, maxFrame int, log zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		ingress:  ingress,
		maxFrame: maxFrame,
		log:      log.With().Str("component", "session_workers").Logger(),
		conns:    make(chan net.Conn, 64),
	}
}

// Start launches size workers under t. Start must be called once; t.Go
// panics if called after every goroutine of the tomb has finished.
func (p *WorkerPool) Start(t *tomb.Tomb, size int) {
	p.t = t
	for i := 0; i < size; i++ {
		t.Go(p.run)
	}
}

// Submit hands a newly accepted connection to the pool. Submit blocks if
// every worker is already busy and the internal channel is full; callers
// on the accept loop should treat that as backpressure, not an error. Once
// the tomb is dying, the connection is closed instead.
func (p *WorkerPool) Submit(conn net.Conn) {
	select {
	case <-p.t.Dying():
		_ = conn.Close()
		return
	default:
	}
	select {
	case p.conns <- conn:
	case <-p.t.Dying():
		_ = conn.Close()
	}
}

func (p *WorkerPool) run() error {
	for {
		select {
		case <-p.t.Dying():
			return nil
		case conn := <-p.conns:
			p.serve(conn)
		}
	}
}

func (p *WorkerPool) serve(conn net.Conn) {
	defer conn.Close()
	dec := NewDecoder(p.maxFrame)
	buf := make([]byte, p.maxFrame)
	for {
		select {
		case <-p.t.Dying():
			return
		default:
		}
		n, err := conn.Read(buf)
		if err != nil {
			if n == 0 {
				return
			}
		}
		cmds, decodeErr := dec.Feed(buf[:n])
		if decodeErr != nil {
			p.log.Warn().Err(decodeErr).Msg("frame decode error")
		}
		for _, cmd := range cmds {
			if enqueueErr := p.ingress.TryEnqueue(cmd); enqueueErr != nil {
				p.log.Warn().Err(enqueueErr).Msg("ingress queue full, dropping command")
			}
		}
		if err != nil {
			return
		}
	}
}
