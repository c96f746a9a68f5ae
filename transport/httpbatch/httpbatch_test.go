package httpbatch

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/collector"
)

type received struct {
	mu       sync.Mutex
	payloads []string
}

func (r *received) handle(rec codec.Record, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(rec.Payload))
}

func (r *received) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

// startServer serves handler on a loopback listener for the duration of the test
func startServer(t *testing.T, handler fasthttp.RequestHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return ln.Addr().String()
}

func unit(payload string) *codec.Unit {
	rec := codec.Record{Severity: codec.SeverityWarning, UID: 9, Payload: []byte(payload)}
	return codec.NewUnit(codec.DefaultMessageID, &rec)
}

func TestTransportPostsCompressedBatch(t *testing.T) {
	got := &received{}
	srv, err := collector.New(got.handle)
	require.NoError(t, err)
	addr := startServer(t, srv.HandleHTTP)

	tr, err := New(WithTimeout(time.Second))
	require.NoError(t, err)
	defer tr.Close()

	ch := tr.ResolveChannel(addr)
	require.NotNil(t, ch)

	for i := 0; i < 5; i++ {
		ch.Enqueue(unit(fmt.Sprintf("batched %d", i)))
	}
	ch.DeferredSend()

	assert.Eventually(t, func() bool { return len(got.snapshot()) == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "batched 0", got.snapshot()[0])
	assert.Equal(t, "batched 4", got.snapshot()[4])
	assert.Eventually(t, func() bool { return !ch.IsSending() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), srv.Rejected())
}

func TestTransportUncompressed(t *testing.T) {
	var encoding atomic.Value
	got := &received{}
	srv, err := collector.New(got.handle)
	require.NoError(t, err)
	addr := startServer(t, func(ctx *fasthttp.RequestCtx) {
		encoding.Store(string(ctx.Request.Header.Peek(fasthttp.HeaderContentEncoding)))
		srv.HandleHTTP(ctx)
	})

	tr, err := New(WithCompression(false))
	require.NoError(t, err)
	defer tr.Close()

	ch := tr.ResolveChannel(addr)
	require.NotNil(t, ch)
	ch.Enqueue(unit("plain"))
	ch.DeferredSend()

	assert.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "", encoding.Load())
}

func TestTransportMarksCollectorDown(t *testing.T) {
	addr := startServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.Error("unavailable", fasthttp.StatusServiceUnavailable)
	})

	tr, err := New(WithRetryInterval(time.Hour))
	require.NoError(t, err)
	defer tr.Close()

	ch := tr.ResolveChannel(addr)
	require.NotNil(t, ch)
	ch.Enqueue(unit("lost"))
	ch.DeferredSend()

	assert.Eventually(t, func() bool { return tr.ResolveChannel(addr) == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestTransportClosed(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	assert.Nil(t, tr.ResolveChannel("127.0.0.1:1"))
}
