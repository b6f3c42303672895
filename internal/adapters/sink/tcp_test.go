package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/pkg/config"
)

func tcpOutput(t *testing.T, addr string) config.Output {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return config.Output{Type: config.OutputTCP, Host: host, Port: p, Timeout: time.Second}
}

func TestTCP_Write(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan map[string]any, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			var m map[string]any
			if json.Unmarshal(sc.Bytes(), &m) == nil {
				lines <- m
			}
		}
	}()

	s := NewTCP(tcpOutput(t, ln.Addr().String()), discardLogger)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, testDelivery(t, 1, nil)))
	require.NoError(t, s.Write(ctx, testDelivery(t, 2, nil)))

	for _, want := range []float64{1, 2} {
		select {
		case m := <-lines:
			assert.Equal(t, want, m["id"])
		case <-time.After(2 * time.Second):
			t.Fatal("line was not received")
		}
	}
}

func TestTCP_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewTCP(tcpOutput(t, addr), discardLogger)
	attempts := 0
	s.backoff = func() backoff.BackOff {
		attempts++
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 2)
	}

	err = s.Write(context.Background(), testDelivery(t, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
	assert.Equal(t, 1, attempts)
}

func TestTCP_ContextCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	o := tcpOutput(t, addr)
	o.Timeout = 0
	s := NewTCP(o, discardLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = s.Write(ctx, testDelivery(t, 1, nil))
	require.Error(t, err)
}
