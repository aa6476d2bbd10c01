package hawk

import (
	"strings"
)

const maxHeaderLen = 4096

// Header holds the attributes of a Hawk Authorization header.
type Header struct {
	ID    string
	TS    string
	Nonce string
	Hash  string
	Ext   string
	MAC   string
}

// app and dlg (application delegation) are not covered by the MAC this
// server computes, so headers carrying them are refused.
var knownAttrs = map[string]bool{
	"id": true, "ts": true, "nonce": true, "hash": true,
	"ext": true, "mac": true,
}

// ParseHeader parses `Hawk id="…", ts="…", …`. Unknown attributes,
// duplicates, and values with characters outside the Hawk value set are
// rejected.
func ParseHeader(v string) (Header, error) {
	if len(v) > maxHeaderLen {
		return Header{}, errReason(ReasonMalformed)
	}
	scheme, rest, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok || !strings.EqualFold(scheme, "hawk") {
		return Header{}, errReason(ReasonMalformed)
	}

	attrs := make(map[string]string, 6)
	rest = strings.TrimSpace(rest)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return Header{}, errReason(ReasonMalformed)
		}
		name := strings.TrimSpace(rest[:eq])
		rest = strings.TrimLeft(rest[eq+1:], " ")
		if !strings.HasPrefix(rest, `"`) {
			return Header{}, errReason(ReasonMalformed)
		}
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return Header{}, errReason(ReasonMalformed)
		}
		val := rest[1 : 1+end]
		rest = strings.TrimSpace(rest[end+2:])
		if rest != "" {
			if rest[0] != ',' {
				return Header{}, errReason(ReasonMalformed)
			}
			rest = strings.TrimSpace(rest[1:])
		}

		if !knownAttrs[name] || !validValue(val) {
			return Header{}, errReason(ReasonMalformed)
		}
		if _, dup := attrs[name]; dup {
			return Header{}, errReason(ReasonMalformed)
		}
		attrs[name] = val
	}

	h := Header{
		ID:    attrs["id"],
		TS:    attrs["ts"],
		Nonce: attrs["nonce"],
		Hash:  attrs["hash"],
		Ext:   attrs["ext"],
		MAC:   attrs["mac"],
	}
	if h.ID == "" || h.TS == "" || h.Nonce == "" || h.MAC == "" || h.Hash == "" {
		return Header{}, errReason(ReasonMalformed)
	}
	return h, nil
}

// validValue matches the printable set Hawk allows inside quotes: no
// backslash, no double quote, no control characters.
func validValue(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

// String renders the header in the form ParseHeader accepts.
func (h Header) String() string {
	var b strings.Builder
	b.WriteString(`Hawk id="`)
	b.WriteString(h.ID)
	b.WriteString(`", ts="`)
	b.WriteString(h.TS)
	b.WriteString(`", nonce="`)
	b.WriteString(h.Nonce)
	b.WriteString(`", hash="`)
	b.WriteString(h.Hash)
	if h.Ext != "" {
		b.WriteString(`", ext="`)
		b.WriteString(h.Ext)
	}
	b.WriteString(`", mac="`)
	b.WriteString(h.MAC)
	b.WriteString(`"`)
	return b.String()
}
