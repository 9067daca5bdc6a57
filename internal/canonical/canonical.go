// Package canonical produces the byte form that signers sign and verifiers
// check. The encoding is deterministic: object keys sorted by code point,
// ", " and ": " separators, non-ASCII escaped as \uXXXX, integers kept as
// integers and floats in shortest round-trip form.
//
// Payloads must be decoded with Unmarshal or Decode so that numbers keep
// their integer/float distinction across storage round trips.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/munistream/signature/internal/domain"
)

// TransientFields are excluded from the signed bytes.
var TransientFields = []string{"data_hash"}

// Marshal encodes v canonically. v must be built from the closed value set:
// string, bool, nil, json.Number, Go integer and float kinds, []any and
// map[string]any (or domain.Payload).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SigningBytes strips transient fields and encodes the remaining payload.
func SigningBytes(p domain.Payload) ([]byte, error) {
	return Marshal(StripTransient(p))
}

// StripTransient returns a copy of p without transient fields.
func StripTransient(p domain.Payload) domain.Payload {
	out := p.Clone()
	if out == nil {
		out = domain.Payload{}
	}
	for _, k := range TransientFields {
		delete(out, k)
	}
	return out
}

// Hash returns the hex digest of the canonical form of p. name is SHA256 or
// SHA512, case-insensitive.
func Hash(p domain.Payload, name string) (string, error) {
	b, err := Marshal(p)
	if err != nil {
		return "", err
	}
	switch strings.ToUpper(name) {
	case "SHA256":
		sum := sha256.Sum256(b)
		return hex.EncodeToString(sum[:]), nil
	case "SHA512":
		sum := sha512.Sum512(b)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: hash %q", domain.ErrUnsupportedAlgorithm, name)
	}
}

// Unmarshal decodes JSON keeping numbers as json.Number.
func Unmarshal(data []byte, v any) error {
	return decodeInto(bytes.NewReader(data), v)
}

// Decode reads one JSON object as a payload.
func Decode(r io.Reader) (domain.Payload, error) {
	var p domain.Payload
	if err := decodeInto(r, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", domain.ErrInvalidInput)
	}
	return p, nil
}

func decodeInto(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, x)
	case json.Number:
		return writeNumber(buf, x)
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return writeFloat(buf, float64(x))
	case float64:
		return writeFloat(buf, x)
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case domain.Payload:
		return encodeObject(buf, x)
	case map[string]any:
		return encodeObject(buf, x)
	default:
		return fmt.Errorf("%w: unsupported payload value of type %T", domain.ErrInvalidInput, v)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// byte order of UTF-8 equals code point order
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeString(buf, k)
		buf.WriteString(": ")
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r >= 0x20 && r <= 0x7e {
				buf.WriteRune(r)
				continue
			}
			if r > 0xffff {
				r -= 0x10000
				writeEscape(buf, 0xd800|((r>>10)&0x3ff))
				writeEscape(buf, 0xdc00|(r&0x3ff))
				continue
			}
			writeEscape(buf, r)
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("%w: invalid number %q", domain.ErrInvalidInput, s)
		}
		buf.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid number %q", domain.ErrInvalidInput, s)
	}
	return writeFloat(buf, f)
}

// writeFloat renders f the way the issuing side renders floats: fixed
// notation with a trailing ".0" when integral, scientific outside
// 1e-4 <= |f| < 1e16.
func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number", domain.ErrInvalidInput)
	}
	if f == 0 {
		if math.Signbit(f) {
			buf.WriteString("-0.0")
		} else {
			buf.WriteString("0.0")
		}
		return nil
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if exp < -4 || exp > 15 {
		buf.WriteString(sci)
		return nil
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	buf.WriteString(fixed)
	if !strings.ContainsRune(fixed, '.') {
		buf.WriteString(".0")
	}
	return nil
}
