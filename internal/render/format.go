package render

import (
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

type currencyStyle struct {
	symbol string
	suffix bool
}

// Symbol placement for the locales campaigns are written in. Other locales
// print the ISO code of the region's currency before the amount.
var currencyStyles = map[string]currencyStyle{
	"pt-BR": {symbol: "R$ "},
	"pt-PT": {symbol: " €", suffix: true},
	"en-US": {symbol: "$"},
	"en-GB": {symbol: "£"},
	"es-MX": {symbol: "$"},
	"es-ES": {symbol: " €", suffix: true},
	"de-DE": {symbol: " €", suffix: true},
	"fr-FR": {symbol: " €", suffix: true},
	"it-IT": {symbol: " €", suffix: true},
}

// FormatValue formats raw according to its declared type. Values that do not
// parse as numbers are returned unchanged.
func FormatValue(raw string, typ domain.VariableType, locale string) string {
	switch typ {
	case domain.VarCurrency:
		v, ok := ParseDecimal(raw)
		if !ok {
			return raw
		}
		return FormatCurrency(v, locale)
	case domain.VarNumber:
		v, ok := ParseDecimal(raw)
		if !ok {
			return raw
		}
		return message.NewPrinter(parseLocale(locale)).Sprint(number.Decimal(v))
	default:
		return raw
	}
}

// FormatCurrency formats v with two fraction digits and the locale's
// grouping, decimal separator and currency symbol.
func FormatCurrency(v float64, locale string) string {
	tag := parseLocale(locale)
	amount := message.NewPrinter(tag).Sprint(number.Decimal(v,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))

	if style, ok := currencyStyles[tag.String()]; ok {
		if style.suffix {
			return amount + style.symbol
		}
		return style.symbol + amount
	}
	if unit, conf := currency.FromTag(tag); conf != language.No {
		return unit.String() + " " + amount
	}
	return amount
}

func parseLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.BrazilianPortuguese
	}
	return tag
}

// ParseDecimal parses a decimal written with either '.' or ',' as the
// decimal separator. When both appear the last one is the decimal
// separator and the other is grouping; a separator repeated on its own is
// grouping too.
func ParseDecimal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9', c == '.', c == ',':
		case (c == '-' || c == '+') && i == 0:
		default:
			return 0, false
		}
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
