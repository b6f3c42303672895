package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/ports"
)

// lister — часть клиента Redis, используемая приемником.
type lister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// Redis добавляет JSON-документы в конец списка.
type Redis struct {
	name   string
	key    string
	client lister
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(ctx context.Context, o config.Output) (*Redis, error) {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	})

	timeout := o.Timeout
	if timeout == 0 {
		timeout = config.DefaultOutputTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedis(o.DisplayName(), o.Key, client), nil
}

func newRedis(name, key string, client lister) *Redis {
	return &Redis{name: name, key: key, client: client}
}

func (r *Redis) Name() string { return r.name }

func (r *Redis) Write(ctx context.Context, d *ports.Delivery) error {
	data, err := encodeLine(d.Document)
	if err != nil {
		return err
	}
	// Перевод строки нужен только построчным приемникам.
	if err := r.client.RPush(ctx, r.key, data[:len(data)-1]).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
