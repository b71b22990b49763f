package greeter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/jollaman999/multiport-greeter/internal/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BindError is returned when a listener cannot reserve its port.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Listener is one bound port answering GET / with its own port number.
type Listener struct {
	port   int
	ln     net.Listener
	echo   *echo.Echo
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	err       error // written by serve before done is closed; read only after <-done
}

// Listen binds host:port and starts serving in the background. Port 0 picks
// an ephemeral port; the greeting always reports the port actually bound.
func Listen(host string, port int, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}

	bound := ln.Addr().(*net.TCPAddr).Port
	logger = logger.With(zap.Int("port", bound))

	handler, err := greetHandler(bound, logger)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.GET("/", handler)

	l := &Listener{
		port:   bound,
		ln:     ln,
		echo:   e,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info(fmt.Sprintf("Server running on port %d", bound))

	go l.serve()

	return l, nil
}

// greetHandler captures port by value, so each listener keeps answering with
// its own number regardless of what the caller does with its loop variable.
func greetHandler(port int, logger *zap.Logger) (echo.HandlerFunc, error) {
	body, err := json.Marshal(models.NewGreeting(port))
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeting for port %d: %w", port, err)
	}

	return func(c echo.Context) error {
		logger.Info("request received", zap.String("remote", c.RealIP()))
		return c.JSONBlob(http.StatusOK, body)
	}, nil
}

func (l *Listener) serve() {
	defer close(l.done)

	// Listener is preset, so the address argument is ignored.
	err := l.echo.Start("")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.err = err
		l.logger.Error("server stopped unexpectedly", zap.Error(err))
	}
}

func (l *Listener) Port() int {
	return l.port
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Done is closed once the listener has stopped serving.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err reports why serving stopped. It is nil after a regular Close and only
// meaningful once Done is closed.
func (l *Listener) Err() error {
	<-l.done
	return l.err
}

// Close stops this listener only. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.echo.Close()
		// echo only tracks the socket once Serve has started
		if cerr := l.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
		if err != nil {
			err = fmt.Errorf("failed to close listener on port %d: %w", l.port, err)
		}
		l.logger.Info("server closed")
	})
	return err
}
