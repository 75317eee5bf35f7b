package webmod

import (
	"fmt"
	"strings"
)

// HeaderField is one header line as received.
type HeaderField struct {
	Name  string
	Value string
}

// headerLineOverhead accounts for ": " and the trailing CRLF of a header line.
const headerLineOverhead = 4

// parseHeaders folds fields into a lower-case map while enforcing the byte
// and count limits. Non-positive limits are not enforced. Repeated headers
// are joined with ", ", except Cookie which is joined with "; ".
func parseHeaders(fields []HeaderField, maxBytes, maxCount int) (map[string]string, int, error) {
	headers := make(map[string]string, len(fields))
	total := 0
	for i, f := range fields {
		if maxCount > 0 && i+1 > maxCount {
			return nil, total, fmt.Errorf("%w: more than %d headers", ErrTooManyHeaders, maxCount)
		}
		total += len(f.Name) + len(f.Value) + headerLineOverhead
		if maxBytes > 0 && total > maxBytes {
			return nil, total, fmt.Errorf("%w: %d bytes exceeds %d", ErrHeaderTooLarge, total, maxBytes)
		}
		name := strings.ToLower(f.Name)
		if prev, ok := headers[name]; ok {
			sep := ", "
			if name == "cookie" {
				sep = "; "
			}
			headers[name] = prev + sep + f.Value
			continue
		}
		headers[name] = f.Value
	}
	return headers, total, nil
}
