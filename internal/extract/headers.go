package extract

import (
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// HeaderMap maps canonical header names to every value in the order the
// headers appeared. Repeated headers such as Received are never collapsed.
type HeaderMap map[string][]string

// Get returns the first value of a header, or "" when it is absent
func (h HeaderMap) Get(name string) string {
	values := h[textproto.CanonicalMIMEHeaderKey(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns all values of a header in original order
func (h HeaderMap) Values(name string) []string {
	return h[textproto.CanonicalMIMEHeaderKey(name)]
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeHeaders copies a raw MIME header, decoding RFC 2047 encoded words.
// A value that fails to decode is kept as presented.
func decodeHeaders(raw textproto.MIMEHeader) (HeaderMap, []Degradation) {
	headers := make(HeaderMap, len(raw))
	var degraded []Degradation
	for key, values := range raw {
		decoded := make([]string, 0, len(values))
		for _, v := range values {
			d, err := decodeHeaderValue(v)
			if err != nil {
				degraded = append(degraded, Degradation{
					Part:   "header " + key,
					Reason: err.Error(),
				})
			}
			decoded = append(decoded, d)
		}
		headers[textproto.CanonicalMIMEHeaderKey(key)] = decoded
	}
	return headers, degraded
}

func decodeHeaderValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "=?") {
		return v, nil
	}
	d, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v, fmt.Errorf("failed to decode encoded words: %w", err)
	}
	return d, nil
}
