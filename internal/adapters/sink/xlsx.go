package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/ports"
)

// XLSX добавляет документы строками на лист книги Excel. Колонки соответствуют
// путям полей, первая строка — заголовки. Новые поля добавляют колонки справа.
type XLSX struct {
	name  string
	path  string
	sheet string

	mu      sync.Mutex
	file    *excelize.File
	columns map[string]int
	lastCol int
	nextRow int
}

// NewXLSX открывает существующую книгу или создает новую.
func NewXLSX(o config.Output) (*XLSX, error) {
	sheet := o.Sheet
	if sheet == "" {
		sheet = config.DefaultXLSXSheet
	}
	x := &XLSX{name: o.DisplayName(), path: o.Path, sheet: sheet, columns: make(map[string]int)}

	if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", o.Path, err)
	}

	f, err := excelize.OpenFile(o.Path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	default:
		return nil, fmt.Errorf("open %s: %w", o.Path, err)
	}
	x.file = f

	if err := x.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return x, nil
}

// loadHeader восстанавливает колонки и номер следующей строки из существующего листа.
func (x *XLSX) loadHeader() error {
	idx, err := x.file.GetSheetIndex(x.sheet)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", x.sheet, err)
	}
	if idx == -1 {
		if _, err := x.file.NewSheet(x.sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", x.sheet, err)
		}
	}

	rows, err := x.file.GetRows(x.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", x.sheet, err)
	}
	if len(rows) > 0 {
		for i, h := range rows[0] {
			if h != "" {
				x.columns[h] = i + 1
				x.lastCol = i + 1
			}
		}
	}
	x.nextRow = max(len(rows)+1, 2)
	return nil
}

func (x *XLSX) Name() string { return x.name }

func (x *XLSX) Write(_ context.Context, d *ports.Delivery) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	row := x.nextRow
	for _, f := range d.Document.Flatten() {
		col, err := x.column(f.Path)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		if err := x.file.SetCellValue(x.sheet, cell, cellValue(f.Value)); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}

	if err := x.file.SaveAs(x.path); err != nil {
		return fmt.Errorf("save %s: %w", x.path, err)
	}
	x.nextRow++
	return nil
}

// column возвращает номер колонки для пути, при необходимости добавляя заголовок.
func (x *XLSX) column(path string) (int, error) {
	if col, ok := x.columns[path]; ok {
		return col, nil
	}
	col := x.lastCol + 1
	cell, err := excelize.CoordinatesToCellName(col, 1)
	if err != nil {
		return 0, err
	}
	if err := x.file.SetCellValue(x.sheet, cell, path); err != nil {
		return 0, fmt.Errorf("set header %s: %w", cell, err)
	}
	x.columns[path] = col
	x.lastCol = col
	return col, nil
}

// cellValue приводит значение документа к виду, который понимает excelize.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return val
	}
}

func (x *XLSX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.file.Close()
}
