package collect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var priceRe = regexp.MustCompile(`(\d[\d,.]*)`)

// ParsePriceCents extracts a price from display text like "$1,299.99" or
// "1299,99 €" and normalizes it to integer cents. Prices with a comma
// decimal separator are handled; thousands separators are stripped.
func ParsePriceCents(text string) (int64, error) {
	match := priceRe.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no price in %q", text)
	}

	// Decide which of '.' and ',' is the decimal separator: the one that
	// appears last and is followed by exactly two digits.
	lastDot := strings.LastIndex(match, ".")
	lastComma := strings.LastIndex(match, ",")
	decimalSep := ""
	sepIdx := -1
	if lastDot > lastComma {
		decimalSep, sepIdx = ".", lastDot
	} else if lastComma > lastDot {
		decimalSep, sepIdx = ",", lastComma
	}
	if decimalSep != "" && len(match)-sepIdx-1 != 2 {
		// Trailing group of 3 is a thousands separator, not a decimal
		decimalSep = ""
	}

	var whole, frac string
	if decimalSep != "" {
		whole, frac = match[:sepIdx], match[sepIdx+1:]
	} else {
		whole, frac = match, "00"
	}

	whole = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, whole)
	if whole == "" {
		whole = "0"
	}

	wholeVal, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", text, err)
	}
	fracVal, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", text, err)
	}

	return wholeVal*100 + fracVal, nil
}
