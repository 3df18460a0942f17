package netflow

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
)

// FieldKind enumerates the semantic kinds a Field Spec can resolve to, per §3.
type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindString
	KindVarString
	KindSkip
	KindVarSkip
	KindOctetArray
	KindIPv4Addr
	KindIPv6Addr
	KindMacAddr
	KindApplicationID
)

func (k FieldKind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindString:
		return "string"
	case KindVarString:
		return "var_string"
	case KindSkip:
		return "skip"
	case KindVarSkip:
		return "var_skip"
	case KindOctetArray:
		return "octet_array"
	case KindIPv4Addr:
		return "ipv4_addr"
	case KindIPv6Addr:
		return "ipv6_addr"
	case KindMacAddr:
		return "mac_addr"
	case KindApplicationID:
		return "application_id"
	default:
		return "unknown"
	}
}

// FieldSpec is an immutable descriptor of how to read one field from a
// binary record, resolved by the Layout Resolver (§4.C) from a raw
// (field_type, wire_length, enterprise_id) triple plus a Field Dictionary
// entry. Field Specs are never mutated once resolved (Invariant 1/2 carry
// over by construction: resolveField always returns a fresh value).
type FieldSpec struct {
	Kind   FieldKind
	Name   string
	Length int // byte width for fixed-width kinds; 0 for unknown
}

// Variable reports whether decoding this field requires reading an inline
// length prefix rather than a fixed number of bytes.
func (f FieldSpec) Variable() bool {
	return f.Kind == KindVarString || f.Kind == KindVarSkip
}

// HasValue reports whether decoding this field produces a named value in the
// resulting Event. skip/var_skip fields are discarded per §4.C rule 2.
func (f FieldSpec) HasValue() bool {
	return f.Kind != KindSkip && f.Kind != KindVarSkip
}

// decode reads one field's value from r, returning the decoded value (nil for
// skip kinds), the number of bytes consumed, and any read error.
func (f FieldSpec) decode(r io.Reader) (interface{}, int, error) {
	switch f.Kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return decodeUint(r, f.Length)
	case KindString:
		return decodeFixedString(r, f.Length)
	case KindVarString:
		b, n, err := decodeVarBytes(r)
		if err != nil {
			return nil, n, err
		}
		return string(b), n, nil
	case KindSkip:
		n, err := discard(r, f.Length)
		return nil, n, err
	case KindVarSkip:
		_, n, err := decodeVarBytes(r)
		return nil, n, err
	case KindOctetArray:
		b := make([]byte, f.Length)
		n, err := io.ReadFull(r, b)
		if err != nil {
			return nil, n, err
		}
		return hex.EncodeToString(b), n, nil
	case KindIPv4Addr:
		b := make([]byte, 4)
		n, err := io.ReadFull(r, b)
		if err != nil {
			return nil, n, err
		}
		return net.IP(b).String(), n, nil
	case KindIPv6Addr:
		b := make([]byte, 16)
		n, err := io.ReadFull(r, b)
		if err != nil {
			return nil, n, err
		}
		return net.IP(b).String(), n, nil
	case KindMacAddr:
		b := make([]byte, 6)
		n, err := io.ReadFull(r, b)
		if err != nil {
			return nil, n, err
		}
		return net.HardwareAddr(b).String(), n, nil
	case KindApplicationID:
		return decodeApplicationID(r, f.Length)
	default:
		return nil, 0, fmt.Errorf("%w: cannot decode field of unknown kind", ErrUnknownField)
	}
}

// encode writes value back to w in this field's wire format, returning the
// number of bytes written. It is the inverse of decode for every kind that
// produces a value except application_id (§8 Testable Property 1, template
// round-trip); skip and var_skip carry no decoded value, and neither they nor
// application_id have a defined encoding (encode returns an error for them).
func (f FieldSpec) encode(w io.Writer, value interface{}) (int, error) {
	switch f.Kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		v, ok := value.(uint64)
		if !ok {
			return 0, fmt.Errorf("%w: expected uint64 for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		return encodeUint(w, v, f.Length)
	case KindString:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		return encodeFixedString(w, s, f.Length)
	case KindVarString:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		return encodeVarBytes(w, []byte(s))
	case KindOctetArray:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected hex string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid hex for octet_array: %v", ErrUnknownField, err)
		}
		return w.Write(b)
	case KindIPv4Addr:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected ipv4 string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		ip := net.ParseIP(s).To4()
		if ip == nil {
			return 0, fmt.Errorf("%w: invalid ipv4 address %q", ErrUnknownField, s)
		}
		return w.Write(ip)
	case KindIPv6Addr:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected ipv6 string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		ip := net.ParseIP(s).To16()
		if ip == nil {
			return 0, fmt.Errorf("%w: invalid ipv6 address %q", ErrUnknownField, s)
		}
		return w.Write(ip)
	case KindMacAddr:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: expected mac address string for kind %s, got %T", ErrUnknownField, f.Kind, value)
		}
		mac, err := net.ParseMAC(s)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid mac address %q: %v", ErrUnknownField, s, err)
		}
		return w.Write(mac)
	default:
		return 0, fmt.Errorf("%w: cannot encode field of kind %s", ErrUnknownField, f.Kind)
	}
}

// width reports the fixed number of bytes this field occupies on the wire,
// or -1 if the field is variable-length (its actual width is only known once
// decoded).
func (f FieldSpec) width() int {
	if f.Variable() {
		return -1
	}
	switch f.Kind {
	case KindIPv4Addr:
		return 4
	case KindIPv6Addr:
		return 16
	case KindMacAddr:
		return 6
	default:
		return f.Length
	}
}

func decodeUint(r io.Reader, width int) (uint64, int, error) {
	b := make([]byte, width)
	n, err := io.ReadFull(r, b)
	if err != nil {
		return 0, n, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, n, nil
}

func decodeFixedString(r io.Reader, length int) (string, int, error) {
	b := make([]byte, length)
	n, err := io.ReadFull(r, b)
	if err != nil {
		return "", n, err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), n, nil
}

// decodeVarBytes implements the standard IPFIX/NetFlow variable-length
// inline encoding (RFC 7011 §7): a 1-byte length, or, when that byte is the
// sentinel 0xFF, a following 2-byte length in the "long form".
func decodeVarBytes(r io.Reader) ([]byte, int, error) {
	var short [1]byte
	n, err := io.ReadFull(r, short[:])
	if err != nil {
		return nil, n, err
	}
	total := n
	length := int(short[0])
	if short[0] == 0xFF {
		var long [2]byte
		n2, err := io.ReadFull(r, long[:])
		total += n2
		if err != nil {
			return nil, total, err
		}
		length = int(binary.BigEndian.Uint16(long[:]))
	}
	b := make([]byte, length)
	n3, err := io.ReadFull(r, b)
	total += n3
	if err != nil {
		return nil, total, err
	}
	return b, total, nil
}

func encodeUint(w io.Writer, v uint64, width int) (int, error) {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return w.Write(b)
}

func encodeFixedString(w io.Writer, s string, length int) (int, error) {
	b := make([]byte, length)
	copy(b, s)
	return w.Write(b)
}

// encodeVarBytes is the inverse of decodeVarBytes: it writes the standard
// IPFIX/NetFlow variable-length inline encoding (RFC 7011 §7).
func encodeVarBytes(w io.Writer, b []byte) (int, error) {
	total := 0
	if len(b) < 0xFF {
		n, err := w.Write([]byte{byte(len(b))})
		total += n
		if err != nil {
			return total, err
		}
	} else {
		n, err := w.Write([]byte{0xFF})
		total += n
		if err != nil {
			return total, err
		}
		var long [2]byte
		binary.BigEndian.PutUint16(long[:], uint16(len(b)))
		n2, err := w.Write(long[:])
		total += n2
		if err != nil {
			return total, err
		}
	}
	n3, err := w.Write(b)
	total += n3
	return total, err
}

func discard(r io.Reader, length int) (int, error) {
	n, err := io.CopyN(io.Discard, r, int64(length))
	return int(n), err
}

// decodeApplicationID composes an RFC 6759 application id from a 1-byte
// engine id followed by a selector of the remaining bytes.
func decodeApplicationID(r io.Reader, length int) (string, int, error) {
	if length < 1 {
		return "", 0, fmt.Errorf("%w: application_id requires at least 1 byte, got %d", ErrUnknownField, length)
	}
	b := make([]byte, length)
	n, err := io.ReadFull(r, b)
	if err != nil {
		return "", n, err
	}
	engineID := b[0]
	selector := b[1:]
	return fmt.Sprintf("%d:%s", engineID, hex.EncodeToString(selector)), n, nil
}
