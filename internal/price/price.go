// Package price converts between raw integer amounts and grouped display strings.
package price

import (
	"strconv"
	"strings"
)

// Delimiter separates groups of three digits in a display string
const Delimiter = "."

// Format strips every non-digit from raw and groups the remaining digits
// in runs of three from the right. Input without digits yields "".
func Format(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return group(digits.String())
}

// FormatInt formats a non-negative amount. Negative amounts format as their absolute value.
func FormatInt(amount int64) string {
	if amount < 0 {
		return group(strconv.FormatUint(uint64(-(amount+1))+1, 10))
	}
	return group(strconv.FormatInt(amount, 10))
}

func group(digits string) string {
	if digits == "" {
		return ""
	}

	head := len(digits) % 3
	if head == 0 {
		head = 3
	}

	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)
	b.WriteString(digits[:head])
	for i := head; i < len(digits); i += 3 {
		b.WriteString(Delimiter)
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Unformat removes delimiters and parses the leading run of digits.
// Non-numeric or overflowing input yields 0.
func Unformat(display string) int64 {
	s := strings.TrimSpace(strings.ReplaceAll(display, Delimiter, ""))

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}

	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
