// Package sizeunit разбирает и форматирует размеры в байтах с двоичными префиксами.
package sizeunit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"telegram-forwarder/internal/domain"
)

// ErrInvalidSize возвращается для строк, которые не удалось разобрать.
var ErrInvalidSize = fmt.Errorf("%w: invalid size", domain.ErrConfiguration)

const prefixes = "KMGTP"

var units = []string{"", "K", "M", "G", "T", "P"}

// Parse разбирает строку вида "10MB", "1.5m", "512" в количество байт.
// Регистр не важен, завершающая B необязательна, префиксы двоичные (1K = 1024).
func Parse(text string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	s = strings.TrimSpace(strings.TrimSuffix(s, "B"))
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, text)
	}

	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSize, text, err)
		}
		return n, nil
	}

	unit := s[len(s)-1]
	if strings.IndexByte(prefixes, unit) < 0 {
		return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidSize, text, unit)
	}

	number := strings.TrimSpace(s[:len(s)-1])
	if f, err := strconv.ParseFloat(number, 64); err != nil || f < 0 {
		return 0, fmt.Errorf("%w: %q: bad number %q", ErrInvalidSize, text, number)
	}

	// humanize трактует суффикс "Mi" как 1024^2, "M" как 1000^2.
	n, err := humanize.ParseBytes(number + string(unit) + "i")
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSize, text, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q: value overflows", ErrInvalidSize, text)
	}

	return int64(n), nil
}

// MustParse как Parse, но паникует при ошибке. Используется для констант.
func MustParse(text string) int64 {
	n, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return n
}

// Format выбирает наименьшую единицу, в которой значение меньше 1024,
// и выводит его с одним знаком после запятой: 1572864 -> "1.5MB".
func Format(bytes int64) string {
	v := float64(bytes)
	for i, u := range units {
		if math.Abs(v) < 1024 || i == len(units)-1 {
			return fmt.Sprintf("%.1f%sB", v, u)
		}
		v /= 1024
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
