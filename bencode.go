package main

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Value is a decoded bencode value: String, Integer, List or Dict.
type Value interface {
	encode(buf *bytes.Buffer)
}

type (
	String  []byte
	Integer int64
	List    []Value
	Dict    map[string]Value
)

// ValueType identifies which grammar rule failed.
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInteger
	TypeList
	TypeDict
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeList:
		return "list"
	default:
		return "dictionary"
	}
}

// ErrorKind is the reason a value failed to decode.
type ErrorKind uint8

const (
	KindFormat ErrorKind = iota // structure: missing ':' or 'e', bad length, bad key
	KindLength                  // string shorter than its length prefix
	KindNumber                  // malformed integer
)

func (k ErrorKind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindLength:
		return "length"
	default:
		return "number"
	}
}

// DecodeError reports the first grammar violation found by DecodeBencode.
type DecodeError struct {
	Offset int
	Type   ValueType
	Kind   ErrorKind
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bencode: invalid %s (%s) at offset %d", e.Type, e.Kind, e.Offset)
}

func decodeErr(t ValueType, k ErrorKind, offset int) *DecodeError {
	return &DecodeError{Type: t, Kind: k, Offset: offset}
}

// DecodeBencode decodes the first value in data and returns it together with
// the bytes that follow it.
func DecodeBencode(data []byte) (Value, []byte, error) {
	d := decoder{data: data}
	v, err := d.value(TypeString)
	if err != nil {
		return nil, nil, err
	}
	return v, data[d.pos:], nil
}

type decoder struct {
	data []byte
	pos  int
}

// value decodes whatever starts at d.pos. parent is the container being
// decoded, it owns the error when the leading byte matches no rule.
func (d *decoder) value(parent ValueType) (Value, error) {
	if d.pos >= len(d.data) {
		return nil, decodeErr(parent, KindFormat, d.pos)
	}
	switch c := d.data[d.pos]; {
	case c >= '0' && c <= '9':
		return d.str()
	case c == 'i':
		return d.integer()
	case c == 'l':
		return d.list()
	case c == 'd':
		return d.dict()
	case parent == TypeString:
		// top level: anything else is read as a string and rejected there
		return d.str()
	default:
		return nil, decodeErr(parent, KindFormat, d.pos)
	}
}

func (d *decoder) str() (String, error) {
	start := d.pos
	colon := bytes.IndexByte(d.data[start:], ':')
	if colon < 0 {
		return nil, decodeErr(TypeString, KindFormat, start)
	}
	n, err := strconv.ParseUint(string(d.data[start:start+colon]), 10, 32)
	if err != nil {
		return nil, decodeErr(TypeString, KindFormat, start)
	}
	begin := start + colon + 1
	if uint64(len(d.data)-begin) < n {
		return nil, decodeErr(TypeString, KindLength, start)
	}
	end := begin + int(n)
	d.pos = end
	return String(d.data[begin:end:end]), nil
}

func (d *decoder) integer() (Integer, error) {
	start := d.pos
	end := bytes.IndexByte(d.data[start+1:], 'e')
	if end < 0 {
		return 0, decodeErr(TypeInteger, KindFormat, start)
	}
	digits := d.data[start+1 : start+1+end]
	if !validInteger(digits) {
		return 0, decodeErr(TypeInteger, KindNumber, start)
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, decodeErr(TypeInteger, KindNumber, start)
	}
	d.pos = start + end + 2
	return Integer(n), nil
}

// validInteger accepts an optional '-' followed by decimal digits with no
// leading zero, except "0" itself. "-0" is rejected.
func validInteger(b []byte) bool {
	if len(b) > 0 && b[0] == '-' {
		b = b[1:]
		if len(b) == 1 && b[0] == '0' {
			return false
		}
	}
	if len(b) == 0 || (b[0] == '0' && len(b) > 1) {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (d *decoder) list() (List, error) {
	start := d.pos
	d.pos++
	l := List{}
	for {
		if d.pos >= len(d.data) {
			return nil, decodeErr(TypeList, KindFormat, start)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return l, nil
		}
		v, err := d.value(TypeList)
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (d *decoder) dict() (Dict, error) {
	start := d.pos
	d.pos++
	m := Dict{}
	for {
		if d.pos >= len(d.data) {
			return nil, decodeErr(TypeDict, KindFormat, start)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return m, nil
		}
		keyAt := d.pos
		key, err := d.str()
		if err != nil {
			return nil, decodeErr(TypeDict, KindFormat, keyAt)
		}
		v, err := d.value(TypeDict)
		if err != nil {
			return nil, err
		}
		m[string(key)] = v
	}
}

// EncodeBencode serializes v. Dictionary keys are always written in
// ascending byte order.
func EncodeBencode(v Value) []byte {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes()
}

func (s String) encode(buf *bytes.Buffer) {
	writeString(buf, s)
}

func writeString[T ~[]byte | ~string](buf *bytes.Buffer, s T) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(string(s))
}

func (n Integer) encode(buf *bytes.Buffer) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(int64(n), 10))
	buf.WriteByte('e')
}

func (l List) encode(buf *bytes.Buffer) {
	buf.WriteByte('l')
	for _, v := range l {
		v.encode(buf)
	}
	buf.WriteByte('e')
}

func (m Dict) encode(buf *bytes.Buffer) {
	buf.WriteByte('d')
	for _, k := range slices.Sorted(maps.Keys(m)) {
		writeString(buf, k)
		m[k].encode(buf)
	}
	buf.WriteByte('e')
}
