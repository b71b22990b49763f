package greeter

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testHost = "127.0.0.1"

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func get(t *testing.T, addr net.Addr, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get("http://" + addr.String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func expectedBody(port int) string {
	return fmt.Sprintf(`{"message":"Server running on port %d"}`, port)
}

func TestListenerGreetsWithOwnPort(t *testing.T) {
	l, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	require.NotZero(t, l.Port())

	resp, body := get(t, l.Addr(), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, expectedBody(l.Port()), body)
}

func TestListenerIgnoresQueryString(t *testing.T) {
	l, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, plain := get(t, l.Addr(), "/")
	_, withQuery := get(t, l.Addr(), "/?pretty&x=1")
	assert.Equal(t, plain, withQuery)
}

func TestListenerRepeatedRequestsAreIdentical(t *testing.T) {
	l, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, first := get(t, l.Addr(), "/")
	for i := 0; i < 5; i++ {
		_, body := get(t, l.Addr(), "/")
		assert.Equal(t, first, body)
	}
}

func TestListenerUnknownPathAndMethod(t *testing.T) {
	l, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	resp, _ := get(t, l.Addr(), "/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post("http://"+l.Addr().String()+"/", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListenerLogsPort(t *testing.T) {
	logger, logs := newObservedLogger()

	l, err := Listen(testHost, 0, logger)
	require.NoError(t, err)
	defer l.Close()

	startup := logs.FilterMessage(fmt.Sprintf("Server running on port %d", l.Port()))
	require.Equal(t, 1, startup.Len())
	assert.Equal(t, int64(l.Port()), startup.All()[0].ContextMap()["port"])

	get(t, l.Addr(), "/")
	get(t, l.Addr(), "/")

	requests := logs.FilterMessage("request received").All()
	require.Len(t, requests, 2)
	for _, entry := range requests {
		assert.Equal(t, int64(l.Port()), entry.ContextMap()["port"])
	}

	// 404s are not greeted and not logged as greetings
	get(t, l.Addr(), "/unknown")
	assert.Equal(t, 2, logs.FilterMessage("request received").Len())
}

func TestListenerCloseIsIdempotent(t *testing.T) {
	l, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.NoError(t, l.Err())

	_, err = net.DialTimeout("tcp", l.Addr().String(), time.Second)
	assert.Error(t, err)
}

func TestStartAllEachListenerEchoesItsOwnPort(t *testing.T) {
	g := New(testHost, zap.NewNop())
	defer g.Close()

	listeners, err := g.StartAll([]int{0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, listeners, 5)

	seen := make(map[int]bool)
	for _, l := range listeners {
		assert.False(t, seen[l.Port()], "port %d bound twice", l.Port())
		seen[l.Port()] = true
	}

	var wg sync.WaitGroup
	for _, l := range listeners {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(l *Listener) {
				defer wg.Done()
				resp, err := http.Get("http://" + l.Addr().String() + "/")
				if !assert.NoError(t, err) {
					return
				}
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				assert.NoError(t, err)
				assert.Equal(t, expectedBody(l.Port()), string(body))
			}(l)
		}
	}
	wg.Wait()
}

func TestStartAllAcceptsTCPConnections(t *testing.T) {
	g := New(testHost, zap.NewNop())
	defer g.Close()

	listeners, err := g.StartAll([]int{0, 0, 0})
	require.NoError(t, err)

	for _, l := range listeners {
		conn, err := net.DialTimeout("tcp", l.Addr().String(), time.Second)
		require.NoError(t, err, "port %d", l.Port())
		conn.Close()
	}
}

func TestStartAllBindFailureLeavesOthersRunning(t *testing.T) {
	logger, logs := newObservedLogger()

	first, err := Listen(testHost, 0, logger)
	require.NoError(t, err)
	defer first.Close()

	g := New(testHost, logger)
	defer g.Close()

	listeners, err := g.StartAll([]int{first.Port(), 0})
	require.Error(t, err)
	require.Len(t, listeners, 1)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, first.Port(), bindErr.Port)
	assert.Contains(t, bindErr.Error(), fmt.Sprintf("failed to bind port %d", first.Port()))
	assert.NotNil(t, errors.Unwrap(bindErr))

	assert.Equal(t, 1, logs.FilterMessage("failed to start server").Len())

	// the original owner of the port is unaffected
	resp, body := get(t, first.Addr(), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, expectedBody(first.Port()), body)

	// and so is the listener that did bind
	_, body = get(t, listeners[0].Addr(), "/")
	assert.Equal(t, expectedBody(listeners[0].Port()), body)
}

func TestStartAllCombinesEveryBindFailure(t *testing.T) {
	a, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	b, err := Listen(testHost, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	g := New(testHost, zap.NewNop())
	listeners, err := g.StartAll([]int{a.Port(), b.Port()})
	assert.Empty(t, listeners)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	for i, want := range []int{a.Port(), b.Port()} {
		var bindErr *BindError
		require.True(t, errors.As(errs[i], &bindErr))
		assert.Equal(t, want, bindErr.Port)
	}
}

func TestStopOneListenerKeepsOthers(t *testing.T) {
	g := New(testHost, zap.NewNop())
	defer g.Close()

	listeners, err := g.StartAll([]int{0, 0, 0})
	require.NoError(t, err)

	stopped := listeners[1]
	require.NoError(t, g.Stop(stopped.Port()))
	<-stopped.Done()

	_, err = net.DialTimeout("tcp", stopped.Addr().String(), time.Second)
	assert.Error(t, err)

	for _, l := range []*Listener{listeners[0], listeners[2]} {
		resp, body := get(t, l.Addr(), "/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, expectedBody(l.Port()), body)
	}

	assert.Len(t, g.Listeners(), 2)
	assert.Error(t, g.Stop(stopped.Port()))
}

func TestListenersOrderedByPort(t *testing.T) {
	g := New(testHost, zap.NewNop())
	defer g.Close()

	_, err := g.StartAll([]int{0, 0, 0})
	require.NoError(t, err)

	listeners := g.Listeners()
	require.Len(t, listeners, 3)
	for i := 1; i < len(listeners); i++ {
		assert.Less(t, listeners[i-1].Port(), listeners[i].Port())
	}
}

func TestWaitReturnsAfterClose(t *testing.T) {
	g := New(testHost, zap.NewNop())

	_, err := g.StartAll([]int{0, 0})
	require.NoError(t, err)

	waited := make(chan struct{})
	go func() {
		g.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while listeners were running")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, g.Close())

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
}
