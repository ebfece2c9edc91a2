// Package extract parses raw RFC 5322 / MIME messages into headers, text
// bodies, links and attachment metadata. Parsing never fails on malformed
// input: every unit that cannot be decoded degrades to an empty value and is
// recorded in Message.Degraded.
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jhillyerd/enmime"

	"github.com/mikey/phish-filter/internal/utils"
)

// DisplayLimit is the default number of characters of body text echoed
// back to callers
const DisplayLimit = 4000

const (
	contentTypeTextPlain = "text/plain"
	contentTypeTextHTML  = "text/html"
	dispositionAttach    = "attachment"
	unnamedAttachment    = "unnamed"
)

var extensionPattern = regexp.MustCompile(`(\.[a-z0-9]{1,6})$`)

// rawParser leaves part content exactly as delivered. Transfer and charset
// decoding happen per leaf so attachments are hashed over their own bytes.
var rawParser = enmime.NewParser(enmime.RawContent(true))

// Attachment describes an attachment without ever interpreting its payload
type Attachment struct {
	Filename     string `json:"filename"`
	MIMEType     string `json:"mime"`
	Size         int    `json:"size"`
	SHA256       string `json:"sha256"`
	Extension    string `json:"ext"`
	DetectedMIME string `json:"detected_mime"`
}

// Content is the body content of a message at full length
type Content struct {
	TextPlain   string       `json:"text_plain"`
	TextHTML    string       `json:"text_html"`
	URLsInText  []string     `json:"urls_in_text"`
	LinksInHTML []Link       `json:"links_in_html"`
	Attachments []Attachment `json:"attachments"`
}

// View is the caller-facing slice of Content with bounded text
type View struct {
	TextPlain       string   `json:"text_plain"`
	TextHTMLSnippet string   `json:"text_html_snippet"`
	URLsInText      []string `json:"urls_in_text"`
	LinksInHTML     []Link   `json:"links_in_html"`
}

// Degradation records a unit of the message that could not be fully decoded
type Degradation struct {
	Part   string `json:"part"`
	Reason string `json:"reason"`
}

// Message is the result of parsing one raw message
type Message struct {
	Headers  HeaderMap
	Content  Content
	Degraded []Degradation
}

// View returns the content with plain and HTML text truncated to limit
// characters. A non-positive limit uses DisplayLimit.
func (m *Message) View(limit int) View {
	if limit <= 0 {
		limit = DisplayLimit
	}
	return View{
		TextPlain:       utils.TruncateRunes(m.Content.TextPlain, limit),
		TextHTMLSnippet: utils.TruncateRunes(m.Content.TextHTML, limit),
		URLsInText:      m.Content.URLsInText,
		LinksInHTML:     m.Content.LinksInHTML,
	}
}

// ParseReader reads r fully and parses it. The only error it returns is a
// failure of r itself.
func ParseReader(r io.Reader) (*Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return Parse(raw), nil
}

// Parse parses raw message bytes. It never fails.
func Parse(raw []byte) *Message {
	b := &bodyBuilder{}

	root, err := rawParser.ReadParts(bytes.NewReader(raw))
	if err != nil || root == nil {
		return parseFallback(raw, err)
	}

	headers, degraded := decodeHeaders(root.Header)
	b.degraded = append(b.degraded, degraded...)
	b.walk(root)

	return &Message{
		Headers:  headers,
		Content:  b.content(),
		Degraded: b.degraded,
	}
}

// parseFallback handles input the MIME reader rejected outright. Headers
// are recovered with net/mail when possible and the rest of the input is
// treated as plain text.
func parseFallback(raw []byte, cause error) *Message {
	b := &bodyBuilder{}
	reason := "unreadable MIME structure"
	if cause != nil {
		reason = cause.Error()
	}
	b.degrade("message", reason)

	headers := HeaderMap{}
	body := raw
	if msg, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		var degraded []Degradation
		headers, degraded = decodeHeaders(textproto.MIMEHeader(msg.Header))
		b.degraded = append(b.degraded, degraded...)
		if rest, err := io.ReadAll(msg.Body); err == nil {
			body = rest
		}
	}
	b.plain = append(b.plain, b.validText("message body", body))

	return &Message{
		Headers:  headers,
		Content:  b.content(),
		Degraded: b.degraded,
	}
}

// bodyBuilder accumulates leaf parts in walk order
type bodyBuilder struct {
	plain       []string
	html        []string
	attachments []Attachment
	degraded    []Degradation
}

func (b *bodyBuilder) degrade(part, reason string) {
	b.degraded = append(b.degraded, Degradation{Part: part, Reason: reason})
}

// walk visits leaf parts depth first, in document order
func (b *bodyBuilder) walk(p *enmime.Part) {
	if p == nil {
		return
	}
	if p.FirstChild == nil {
		b.leaf(p)
		return
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c)
	}
}

func (b *bodyBuilder) leaf(p *enmime.Part) {
	name := partName(p)
	for _, e := range p.Errors {
		if e != nil {
			b.degrade(name, e.Error())
		}
	}

	contentType := strings.ToLower(p.ContentType)
	if contentType == "" {
		contentType = contentTypeTextPlain
	}

	switch {
	case strings.EqualFold(p.Disposition, dispositionAttach):
		b.attachments = append(b.attachments, newAttachment(p, contentType, b.payload(name, p)))
	case contentType == contentTypeTextPlain:
		b.plain = append(b.plain, b.decodeText(name, p.Charset, b.payload(name, p)))
	case contentType == contentTypeTextHTML:
		b.html = append(b.html, b.decodeText(name, p.Charset, b.payload(name, p)))
	}
}

// validText returns content as UTF-8, replacing invalid sequences rather
// than rejecting the part
func (b *bodyBuilder) validText(part string, content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	b.degrade(part, "invalid UTF-8 sequences replaced")
	return strings.ToValidUTF8(string(content), string(utf8.RuneError))
}

func (b *bodyBuilder) content() Content {
	c := Content{
		TextPlain:   joinNonBlank(b.plain),
		TextHTML:    joinNonBlank(b.html),
		LinksInHTML: []Link{},
		Attachments: b.attachments,
	}
	if c.Attachments == nil {
		c.Attachments = []Attachment{}
	}

	var urls []string
	for _, text := range b.plain {
		urls = append(urls, FindURLs(text)...)
	}
	c.URLsInText = uniqueSorted(urls)

	known := make(map[string]struct{})
	for _, doc := range b.html {
		for _, l := range extractAnchors(doc) {
			c.LinksInHTML = append(c.LinksInHTML, l)
			known[l.Href] = struct{}{}
		}
		c.LinksInHTML = appendRawURLs(c.LinksInHTML, doc, known)
	}
	return c
}

func newAttachment(p *enmime.Part, contentType string, payload []byte) Attachment {
	filename := p.FileName
	if filename == "" {
		filename = unnamedAttachment
	}
	sum := sha256.Sum256(payload)
	return Attachment{
		Filename:     filename,
		MIMEType:     contentType,
		Size:         len(payload),
		SHA256:       hex.EncodeToString(sum[:]),
		Extension:    ExtensionOf(filename),
		DetectedMIME: mimetype.Detect(payload).String(),
	}
}

// ExtensionOf returns the lowercase extension of a filename, or "" when it
// does not end in a 1-6 character alphanumeric suffix
func ExtensionOf(filename string) string {
	m := extensionPattern.FindStringSubmatch(strings.ToLower(filename))
	if m == nil {
		return ""
	}
	return m[1]
}

func partName(p *enmime.Part) string {
	if p.PartID == "" {
		return "part 0"
	}
	return "part " + p.PartID
}

func joinNonBlank(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
