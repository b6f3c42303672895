package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/ports"
)

var (
	// ErrInvalidTable возвращается для недопустимого имени таблицы.
	ErrInvalidTable = errors.New("invalid table name")
	tableNameRegex  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// SQL сохраняет документы в таблицу SQLite или MySQL. Повторная запись
// того же сообщения заменяет строку.
type SQL struct {
	name   string
	db     *sql.DB
	insert string
}

// NewSQL открывает базу и создает таблицу, если ее нет.
func NewSQL(ctx context.Context, o config.Output) (*SQL, error) {
	table := o.Table
	if table == "" {
		table = config.DefaultSQLTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	var driver string
	switch o.Driver {
	case "sqlite":
		driver = "sqlite"
	case "mysql":
		if _, err := mysql.ParseDSN(o.DSN); err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
		driver = "mysql"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", o.Driver)
	}

	db, err := sql.Open(driver, o.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s, err := newSQL(ctx, o.DisplayName(), db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newSQL(ctx context.Context, name string, db *sql.DB, table string) (*SQL, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		chat_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		date VARCHAR(32) NOT NULL,
		document TEXT NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	)`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &SQL{
		name:   name,
		db:     db,
		insert: fmt.Sprintf("REPLACE INTO %s (chat_id, message_id, date, document) VALUES (?, ?, ?, ?)", table),
	}, nil
}

func (s *SQL) Name() string { return s.name }

func (s *SQL) Write(ctx context.Context, d *ports.Delivery) error {
	data, err := encodeLine(d.Document)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.insert,
		d.Message.ChatID(),
		d.Message.ID,
		d.Message.Date.UTC().Format(time.RFC3339),
		string(data[:len(data)-1]),
	)
	if err != nil {
		return fmt.Errorf("insert message %d: %w", d.Message.ID, err)
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }
