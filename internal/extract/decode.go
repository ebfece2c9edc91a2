package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/jhillyerd/enmime"
	"golang.org/x/text/encoding/htmlindex"
)

const headerTransferEncoding = "Content-Transfer-Encoding"

// payload undoes the transfer encoding of a raw leaf part. Bytes that
// cannot be decoded are dropped and the part is recorded as degraded; the
// result is never converted to another character set.
func (b *bodyBuilder) payload(name string, p *enmime.Part) []byte {
	encoding := strings.ToLower(strings.TrimSpace(p.Header.Get(headerTransferEncoding)))
	switch encoding {
	case "", "7bit", "8bit", "binary":
		return p.Content
	case "base64":
		compact := strings.Join(strings.Fields(string(p.Content)), "")
		out, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "=")); rawErr == nil {
				return raw
			}
			b.degrade(name, fmt.Sprintf("malformed base64: %v", err))
		}
		return out
	case "quoted-printable":
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(p.Content)))
		if err != nil {
			b.degrade(name, fmt.Sprintf("malformed quoted-printable: %v", err))
		}
		return out
	default:
		b.degrade(name, fmt.Sprintf("unrecognized transfer encoding %q", encoding))
		return p.Content
	}
}

// decodeText converts a text payload from its declared charset to UTF-8.
// An undeclared charset means UTF-8.
func (b *bodyBuilder) decodeText(name, charset string, payload []byte) string {
	charset = strings.Trim(strings.TrimSpace(charset), `"`)
	if charset == "" {
		return b.validText(name, payload)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		b.degrade(name, fmt.Sprintf("unsupported charset %q", charset))
		return b.validText(name, payload)
	}
	if canonical, _ := htmlindex.Name(enc); canonical == "utf-8" {
		return b.validText(name, payload)
	}

	text, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		b.degrade(name, fmt.Sprintf("failed to decode %s text: %v", charset, err))
		return b.validText(name, payload)
	}
	return b.validText(name, text)
}
