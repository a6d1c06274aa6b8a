package packet

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

const (
	// HeaderVersion leading token of every header block
	HeaderVersion = "NATS/1.0"

	// StatusNoResponders status of the message synthesized when publish had no subscribers
	StatusNoResponders = 503
)

var (
	crlf      = []byte("\r\n")
	hdrPrefix = []byte(HeaderVersion)
)

// Header ordered multimap of header fields carried by HPUB/HMSG.
// Status and Description are taken from the first line of the block
type Header struct {
	Status      int
	Description string
	keys        []string
	values      map[string][]string
}

// NewHeader allocate empty header block
func NewHeader() *Header {
	return &Header{
		values: make(map[string][]string),
	}
}

// NewStatusHeader allocate header block carrying status only
func NewStatusHeader(status int, description string) *Header {
	h := NewHeader()
	h.Status = status
	h.Description = description

	return h
}

// Add appends value to the field. Field is created if not exists
func (h *Header) Add(name, value string) {
	if _, ok := h.values[name]; !ok {
		h.keys = append(h.keys, name)
	}

	h.values[name] = append(h.values[name], value)
}

// Set replaces all values of the field
func (h *Header) Set(name, value string) {
	if _, ok := h.values[name]; !ok {
		h.keys = append(h.keys, name)
	}

	h.values[name] = []string{value}
}

// Get returns first value of the field
func (h *Header) Get(name string) string {
	if v := h.values[name]; len(v) > 0 {
		return v[0]
	}

	return ""
}

// Values returns all values of the field
func (h *Header) Values(name string) []string {
	return h.values[name]
}

// Del removes the field
func (h *Header) Del(name string) {
	if _, ok := h.values[name]; !ok {
		return
	}

	delete(h.values, name)

	for i, k := range h.keys {
		if k == name {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys field names in insertion order
func (h *Header) Keys() []string {
	return h.keys
}

// Len number of distinct fields
func (h *Header) Len() int {
	return len(h.keys)
}

// Size of encoded block including terminating blank line
func (h *Header) Size() int {
	sz := len(HeaderVersion)

	if h.Status > 0 {
		sz += 1 + len(strconv.Itoa(h.Status))
		if len(h.Description) > 0 {
			sz += 1 + len(h.Description)
		}
	}

	sz += 2

	for _, k := range h.keys {
		for _, v := range h.values[k] {
			sz += len(k) + 2 + len(v) + 2
		}
	}

	return sz + 2
}

// Encode header block
func (h *Header) Encode() []byte {
	return h.AppendTo(make([]byte, 0, h.Size()))
}

// AppendTo appends encoded header block to dst
func (h *Header) AppendTo(dst []byte) []byte {
	dst = append(dst, HeaderVersion...)

	if h.Status > 0 {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(h.Status), 10)

		if len(h.Description) > 0 {
			dst = append(dst, ' ')
			dst = append(dst, h.Description...)
		}
	}

	dst = append(dst, crlf...)

	for _, k := range h.keys {
		for _, v := range h.values[k] {
			dst = append(dst, k...)
			dst = append(dst, ':', ' ')
			dst = append(dst, v...)
			dst = append(dst, crlf...)
		}
	}

	return append(dst, crlf...)
}

// ParseHeader decodes header block. Block must be exactly terminated by empty line
func ParseHeader(buf []byte) (*Header, error) {
	if !bytes.HasPrefix(buf, hdrPrefix) {
		return nil, errors.Wrap(ErrInvalidHeader, "missing "+HeaderVersion)
	}

	if !bytes.HasSuffix(buf, []byte("\r\n\r\n")) {
		return nil, errors.Wrap(ErrInvalidHeader, "block is not terminated")
	}

	h := NewHeader()

	idx := bytes.Index(buf, crlf)
	if err := h.parseStatus(buf[len(hdrPrefix):idx]); err != nil {
		return nil, err
	}

	// skip the final blank line
	body := buf[idx+2 : len(buf)-2]

	var last string

	for len(body) > 0 {
		end := bytes.Index(body, crlf)
		if end < 0 {
			return nil, errors.Wrap(ErrInvalidHeader, "unterminated field")
		}

		line := body[:end]
		body = body[end+2:]

		if len(line) == 0 {
			// blank line before the end of the declared block
			return nil, errors.Wrap(ErrInvalidHeader, "unexpected end of block")
		}

		if line[0] == ' ' || line[0] == '\t' {
			// continuation of the previous value
			if last == "" {
				return nil, errors.Wrap(ErrInvalidHeader, "continuation without field")
			}

			vals := h.values[last]
			vals[len(vals)-1] += " " + string(bytes.TrimLeft(line, " \t"))

			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, errors.Wrapf(ErrInvalidHeader, "malformed field %q", line)
		}

		name := string(bytes.TrimSpace(line[:colon]))
		if len(name) == 0 {
			return nil, errors.Wrap(ErrInvalidHeader, "empty field name")
		}

		h.Add(name, string(trimSeparator(line[colon+1:])))
		last = name
	}

	return h, nil
}

func (h *Header) parseStatus(line []byte) error {
	line = bytes.TrimLeft(line, " \t")
	if len(line) == 0 {
		return nil
	}

	code := line
	var desc []byte

	if sp := bytes.IndexAny(line, " \t"); sp > 0 {
		code = line[:sp]
		desc = line[sp+1:]
	}

	if len(code) != 3 {
		return errors.Wrapf(ErrInvalidHeader, "malformed status %q", code)
	}

	status, err := strconv.Atoi(string(code))
	if err != nil {
		return errors.Wrapf(ErrInvalidHeader, "malformed status %q", code)
	}

	h.Status = status
	h.Description = string(desc)

	return nil
}

// trimSeparator drops single space or tab following field name. The rest of value is kept as is
func trimSeparator(v []byte) []byte {
	if len(v) > 0 && (v[0] == ' ' || v[0] == '\t') {
		return v[1:]
	}

	return v
}
