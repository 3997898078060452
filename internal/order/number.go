package order

import (
	"fmt"
	"regexp"
	"strconv"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// NextOrderNumber derives the next order number on a sheet from the highest
// existing number. The trailing run of digits is incremented with its
// zero-padded width preserved; everything before it is kept verbatim.
//
//	NextOrderNumber("", "ACME")         = "ACME-001"
//	NextOrderNumber("ACME-007", "ACME") = "ACME-008"
//	NextOrderNumber("ACME-099", "ACME") = "ACME-100"
//	NextOrderNumber("ACME-999", "ACME") = "ACME-1000"
//	NextOrderNumber("LEGACY", "ACME")   = "ACME-001"
func NextOrderNumber(last, sheetName string) string {
	if last == "" {
		return sheetName + "-001"
	}

	m := trailingDigits.FindStringSubmatch(last)
	if m == nil {
		// Sheet numbering restarts when the last number has no numeric suffix.
		return sheetName + "-001"
	}

	digits := m[1]
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return sheetName + "-001"
	}

	prefix := last[:len(last)-len(digits)]
	return prefix + fmt.Sprintf("%0*d", len(digits), n+1)
}
