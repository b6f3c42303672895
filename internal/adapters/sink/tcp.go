package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/ports"
)

// TCP отправляет документы JSON-строками в TCP-соединение. При ошибке
// соединение пересоздается и отправка повторяется.
type TCP struct {
	name    string
	addr    string
	retry   time.Duration
	dialer  net.Dialer
	log     *slog.Logger
	backoff func() backoff.BackOff

	mu   sync.Mutex
	conn net.Conn
}

// NewTCP создает приемник. Соединение устанавливается при первой записи.
// Timeout ограничивает общее время повторов, 0 — повторять до отмены контекста.
func NewTCP(o config.Output, log *slog.Logger) *TCP {
	t := &TCP{
		name:   o.DisplayName(),
		addr:   net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		retry:  o.Timeout,
		dialer: net.Dialer{Timeout: config.DefaultOutputTimeout},
		log:    log,
	}
	t.backoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = t.retry
		return b
	}
	return t
}

func (t *TCP) Name() string { return t.name }

func (t *TCP) Write(ctx context.Context, d *ports.Delivery) error {
	line, err := encodeLine(d.Document)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	send := func() error {
		if err := t.ensureConnected(ctx); err != nil {
			t.log.ErrorContext(ctx, "TCP connect failed", "addr", t.addr, "error", err)
			return err
		}
		if _, err := t.conn.Write(line); err != nil {
			t.log.ErrorContext(ctx, "TCP write failed, reconnecting", "addr", t.addr, "error", err)
			t.conn.Close()
			t.conn = nil
			return err
		}
		return nil
	}

	if err := backoff.Retry(send, backoff.WithContext(t.backoff(), ctx)); err != nil {
		return fmt.Errorf("send to %s: %w", t.addr, err)
	}
	return nil
}

func (t *TCP) ensureConnected(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
