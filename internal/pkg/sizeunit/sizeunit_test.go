package sizeunit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		input string
		want  int64
	}{
		{"1KB", 1024},
		{"1.5MB", 1572864},
		{"5G", 5368709120},
		{"12TB", 13194139533312},
		{"1PB", 1125899906842624},
		{"512", 512},
		{"512B", 512},
		{"10mb", 10485760},
		{"0.5k", 512},
		{" 2 M ", 2097152},
		{"0", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "B", "KB", "ten MB", "10XB", "-1K", "1.2.3M", "M10"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSize)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		input int64
		want  string
	}{
		{100, "100.0B"},
		{1024, "1.0KB"},
		{1572864, "1.5MB"},
		{5368709120, "5.0GB"},
		{13194139533312, "12.0TB"},
		{0, "0.0B"},
		{1023, "1023.0B"},
		{2 * 1125899906842624, "2.0PB"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(tc.input))
		})
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	for _, s := range []string{"1.5MB", "5.0GB", "12.0TB", "1.0KB"} {
		n, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(n))
	}
}
