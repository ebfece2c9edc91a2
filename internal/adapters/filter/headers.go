package filter

import (
	"bytes"
	"mime"
	"strings"
)

type header struct {
	name  string
	value string
}

// rewriteMessage prepends headers to raw, drops upstream copies of the
// owned header names and, when prefix is set, prefixes the Subject. The body
// and all other header lines are passed through byte for byte.
func rewriteMessage(raw []byte, headers []header, owned []string, prefix string) []byte {
	head, body := splitHeader(raw)

	var out bytes.Buffer
	for _, h := range headers {
		if h.name == "" {
			continue
		}
		out.WriteString(h.name)
		out.WriteString(": ")
		out.WriteString(encodeValue(h.value))
		out.WriteString("\r\n")
	}

	subjectSeen := false
	for _, field := range headerFields(head) {
		name := fieldName(field)
		if containsFold(owned, name) {
			continue
		}
		if prefix != "" && strings.EqualFold(name, "Subject") && !subjectSeen {
			subjectSeen = true
			field = prefixSubject(field, prefix)
		}
		out.Write(field)
	}
	if prefix != "" && !subjectSeen {
		out.WriteString("Subject: " + encodeValue(prefix) + "\r\n")
	}

	out.Write(body)
	return out.Bytes()
}

// splitHeader splits raw at the blank line ending the header block. The
// returned body keeps the blank line.
func splitHeader(raw []byte) (head, body []byte) {
	if bytes.HasPrefix(raw, []byte("\r\n")) || bytes.HasPrefix(raw, []byte("\n")) {
		return nil, raw
	}
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf+2], raw[crlf+2:]
	case lf >= 0:
		return raw[:lf+1], raw[lf+1:]
	default:
		return raw, []byte("\r\n")
	}
}

// headerFields splits a header block into fields, each with its folded
// continuation lines and line endings
func headerFields(head []byte) [][]byte {
	var fields [][]byte
	for len(head) > 0 {
		end := bytes.IndexByte(head, '\n')
		if end < 0 {
			end = len(head) - 1
		}
		line := head[:end+1]
		head = head[end+1:]
		if len(fields) > 0 && (line[0] == ' ' || line[0] == '\t') {
			last := fields[len(fields)-1]
			fields[len(fields)-1] = append(last[:len(last):len(last)], line...)
			continue
		}
		fields = append(fields, line)
	}
	return fields
}

func fieldName(field []byte) string {
	i := bytes.IndexByte(field, ':')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(string(field[:i]))
}

// prefixSubject inserts prefix before the Subject value unless the value
// already starts with it. Encoded words in the value stay intact.
func prefixSubject(field []byte, prefix string) []byte {
	i := bytes.IndexByte(field, ':')
	value := bytes.TrimLeft(field[i+1:], " \t")
	if bytes.HasPrefix(value, []byte(prefix)) {
		return field
	}
	out := make([]byte, 0, len(field)+len(prefix)+2)
	out = append(out, field[:i+1]...)
	out = append(out, ' ')
	out = append(out, encodeValue(prefix)...)
	out = append(out, ' ')
	return append(out, value...)
}

// encodeValue makes a header value safe to emit on one line
func encodeValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	return mime.QEncoding.Encode("utf-8", v)
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if n != "" && strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
