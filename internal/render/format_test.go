package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234.5", 1234.5, true},
		{"1234,5", 1234.5, true},
		{"1.234,50", 1234.5, true},
		{"1,234.50", 1234.5, true},
		{"1.234.567", 1234567, true},
		{"1,234,567", 1234567, true},
		{" 42 ", 42, true},
		{"-3,25", -3.25, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12a", 0, false},
		{"1e5", 0, false},
		{"NaN", 0, false},
		{"R$ 10", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDecimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		locale string
		v      float64
		want   string
	}{
		{"pt-BR", 1234.5, "R$ 1.234,50"},
		{"pt-BR", 0, "R$ 0,00"},
		{"en-US", 1234.5, "$1,234.50"},
		{"en-US", 1234567.891, "$1,234,567.89"},
		{"de-DE", 1234567.891, "1.234.567,89 €"},
		{"not a locale!", 1234.5, "R$ 1.234,50"},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(tt.v, tt.locale))
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "R$ 10,00", FormatValue("10", domain.VarCurrency, "pt-BR"))
	assert.Equal(t, "n/a", FormatValue("n/a", domain.VarCurrency, "pt-BR"))
	assert.Equal(t, "1,234,567", FormatValue("1234567", domain.VarNumber, "en-US"))
	assert.Equal(t, "2024-01-02", FormatValue("2024-01-02", domain.VarDate, "pt-BR"))
	assert.Equal(t, "1234.5", FormatValue("1234.5", domain.VarText, "pt-BR"))
	assert.Equal(t, "plain", FormatValue("plain", "", "pt-BR"))
}
