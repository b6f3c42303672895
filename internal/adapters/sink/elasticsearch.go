package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/ncruces/go-strftime"

	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/ports"
)

// Elasticsearch индексирует документы. Имя индекса строится из даты
// сообщения по формату strftime, идентификатор документа — id сообщения.
type Elasticsearch struct {
	name        string
	client      *elasticsearch.Client
	indexFormat string
	log         *slog.Logger
}

// NewElasticsearch создает клиент Elasticsearch. Соединение не проверяется до первой записи.
func NewElasticsearch(o config.Output, log *slog.Logger) (*Elasticsearch, error) {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if o.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, o.Port)
	}

	cfg := elasticsearch.Config{
		Addresses: []string{host},
		APIKey:    o.APIKey,
	}
	if o.Username != "" && o.Password != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	if o.Timeout > 0 {
		cfg.Transport = &http.Transport{ResponseHeaderTimeout: o.Timeout}
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	indexFormat := o.IndexFormat
	if indexFormat == "" {
		indexFormat = config.DefaultIndexFormat
	}
	return &Elasticsearch{name: o.DisplayName(), client: client, indexFormat: indexFormat, log: log}, nil
}

func (e *Elasticsearch) Name() string { return e.name }

func (e *Elasticsearch) Write(ctx context.Context, d *ports.Delivery) error {
	// Документ разделяется между приемниками, изменяем копию.
	doc := d.Document.Clone()
	doc.Delete("id")
	doc.Delete("date")
	if err := doc.Set("timestamp", d.Message.Date.UTC()); err != nil {
		return err
	}

	body, err := encodeLine(doc)
	if err != nil {
		return err
	}

	index := strftime.Format(e.indexFormat, d.Message.Date.UTC())
	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: strconv.Itoa(d.Message.ID),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("index document into %s: %s: %s", index, res.Status(), bytes.TrimSpace(msg))
	}
	e.log.DebugContext(ctx, "Document indexed", "index", index, "id", d.Message.ID)
	return nil
}

func (e *Elasticsearch) Close() error { return nil }
