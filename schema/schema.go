// Package schema is the fixed-layout message-encoding helper named in the
// spec's external collaborators (§6: "schema/field-encoding helper —
// optional convenience for building slot payloads as named fields rather
// than raw bytes"). It is a direct port of usrl_schema.h/usrl_schema.c's
// field table: a Schema fixes a set of named, typed, offset-assigned
// fields once, and a Message built from it is just those fields packed
// back-to-back into a byte buffer — the same buffer a publisher hands to
// shm.SWMRPublisher.Publish or shm.MWMRPublisher.Publish.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FieldType mirrors UsrlFieldType's fixed-width and variable-width kinds.
type FieldType int

const (
	U64 FieldType = iota
	I64
	F64
	U32
	I32
	F32
	Bytes
	String
)

func (t FieldType) String() string {
	switch t {
	case U64:
		return "u64"
	case I64:
		return "i64"
	case F64:
		return "f64"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case Bytes:
		return "bytes"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// MaxFields mirrors USRL_MAX_FIELDS.
const MaxFields = 32

// Field is one named, typed, offset-assigned slot in a Schema's layout.
type Field struct {
	Name        string
	Type        FieldType
	Offset      uint32
	Size        uint32
	Fingerprint uint32
}

func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// Schema is a fixed, ordered set of named fields with assigned byte
// offsets, built once via AddField then locked with Finalize — matching
// usrl_schema_create / usrl_schema_add_field / usrl_schema_finalize.
type Schema struct {
	ID          uint32
	Name        string
	Version     uint32
	Fingerprint uint32
	fields      []Field
	byName      map[string]int
	totalSize   uint32
	finalized   bool
}

// New creates an empty schema, matching usrl_schema_create.
func New(id uint32, name string) *Schema {
	return &Schema{ID: id, Name: name, Version: 1, byName: make(map[string]int)}
}

// AddField appends a field to the schema, assigning it the next offset.
// size is only meaningful for Bytes and String fields; fixed-width
// numeric types always occupy their natural width, matching
// usrl_schema_add_field's switch on type.
func (s *Schema) AddField(name string, typ FieldType, size uint32) error {
	if s.finalized {
		return fmt.Errorf("schema: %s is finalized, cannot add fields", s.Name)
	}
	if len(s.fields) >= MaxFields {
		return fmt.Errorf("schema: %s already has the maximum %d fields", s.Name, MaxFields)
	}
	if _, dup := s.byName[name]; dup {
		return fmt.Errorf("schema: field %q already defined", name)
	}

	width := size
	switch typ {
	case U64, I64, F64:
		width = 8
	case U32, I32, F32:
		width = 4
	}

	f := Field{
		Name:        name,
		Type:        typ,
		Offset:      s.totalSize,
		Size:        width,
		Fingerprint: djb2(name),
	}
	s.byName[name] = len(s.fields)
	s.fields = append(s.fields, f)
	s.totalSize += width
	return nil
}

// Finalize computes the schema-wide fingerprint from every field's own
// fingerprint and type, the same XOR-and-mix fold usrl_schema_finalize
// runs. A Schema must have at least one field.
func (s *Schema) Finalize() error {
	if len(s.fields) == 0 {
		return fmt.Errorf("schema: %s has no fields", s.Name)
	}
	var h uint32
	for _, f := range s.fields {
		h ^= f.Fingerprint
		h = h*33 + uint32(f.Type)
	}
	s.Fingerprint = h
	s.finalized = true
	return nil
}

// TotalSize is the packed byte width of one Message built from this schema.
func (s *Schema) TotalSize() uint32 { return s.totalSize }

// Fields returns the schema's fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) field(name string) (Field, error) {
	idx, ok := s.byName[name]
	if !ok {
		return Field{}, fmt.Errorf("schema: %s has no field %q", s.Name, name)
	}
	return s.fields[idx], nil
}

// Message is a packed byte buffer laid out according to a finalized
// Schema, matching UsrlMessage. Its buffer may be larger than the schema's
// total size; the bytes past it are not touched by any accessor, Encode or
// Decode.
type Message struct {
	schema *Schema
	data   []byte
}

// NewMessage allocates a Message for schema, matching usrl_message_create.
// capacity is rounded up to at least the schema's total size.
func NewMessage(s *Schema, capacity uint32) (*Message, error) {
	if !s.finalized {
		return nil, fmt.Errorf("schema: %s must be finalized before building messages", s.Name)
	}
	if capacity < s.totalSize {
		capacity = s.totalSize
	}
	return &Message{schema: s, data: make([]byte, capacity)}, nil
}

// SetBytes copies value into field's slot, truncating to the field's
// fixed width. It matches usrl_message_set's raw-bytes path; SetU64 and
// friends below are typed conveniences built on top of it.
func (m *Message) SetBytes(field string, value []byte) error {
	f, err := m.schema.field(field)
	if err != nil {
		return err
	}
	n := copy(m.data[f.Offset:f.Offset+f.Size], value)
	for i := f.Offset + uint32(n); i < f.Offset+f.Size; i++ {
		m.data[i] = 0
	}
	return nil
}

// GetBytes copies field's raw bytes out, matching usrl_message_get.
func (m *Message) GetBytes(field string) ([]byte, error) {
	f, err := m.schema.field(field)
	if err != nil {
		return nil, err
	}
	out := make([]byte, f.Size)
	copy(out, m.data[f.Offset:f.Offset+f.Size])
	return out, nil
}

// SetU64 sets a U64/I64-typed field, stored little-endian; F64 fields are
// rejected (use SetF64).
func (m *Message) SetU64(field string, v uint64) error {
	f, err := m.schema.field(field)
	if err != nil {
		return err
	}
	if f.Type != U64 && f.Type != I64 {
		return fmt.Errorf("schema: field %q is %s, not u64/i64", field, f.Type)
	}
	binary.LittleEndian.PutUint64(m.data[f.Offset:f.Offset+8], v)
	return nil
}

// GetU64 reads a U64/I64-typed field.
func (m *Message) GetU64(field string) (uint64, error) {
	f, err := m.schema.field(field)
	if err != nil {
		return 0, err
	}
	if f.Type != U64 && f.Type != I64 {
		return 0, fmt.Errorf("schema: field %q is %s, not u64/i64", field, f.Type)
	}
	return binary.LittleEndian.Uint64(m.data[f.Offset : f.Offset+8]), nil
}

// SetU32 sets a U32/I32-typed field.
func (m *Message) SetU32(field string, v uint32) error {
	f, err := m.schema.field(field)
	if err != nil {
		return err
	}
	if f.Type != U32 && f.Type != I32 {
		return fmt.Errorf("schema: field %q is %s, not u32/i32", field, f.Type)
	}
	binary.LittleEndian.PutUint32(m.data[f.Offset:f.Offset+4], v)
	return nil
}

// GetU32 reads a U32/I32-typed field.
func (m *Message) GetU32(field string) (uint32, error) {
	f, err := m.schema.field(field)
	if err != nil {
		return 0, err
	}
	if f.Type != U32 && f.Type != I32 {
		return 0, fmt.Errorf("schema: field %q is %s, not u32/i32", field, f.Type)
	}
	return binary.LittleEndian.Uint32(m.data[f.Offset : f.Offset+4]), nil
}

// SetF64 sets an F64-typed field.
func (m *Message) SetF64(field string, v float64) error {
	f, err := m.schema.field(field)
	if err != nil {
		return err
	}
	if f.Type != F64 {
		return fmt.Errorf("schema: field %q is %s, not f64", field, f.Type)
	}
	binary.LittleEndian.PutUint64(m.data[f.Offset:f.Offset+8], math.Float64bits(v))
	return nil
}

// GetF64 reads an F64-typed field.
func (m *Message) GetF64(field string) (float64, error) {
	f, err := m.schema.field(field)
	if err != nil {
		return 0, err
	}
	if f.Type != F64 {
		return 0, fmt.Errorf("schema: field %q is %s, not f64", field, f.Type)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(m.data[f.Offset : f.Offset+8])), nil
}

// SetF32 sets an F32-typed field.
func (m *Message) SetF32(field string, v float32) error {
	f, err := m.schema.field(field)
	if err != nil {
		return err
	}
	if f.Type != F32 {
		return fmt.Errorf("schema: field %q is %s, not f32", field, f.Type)
	}
	binary.LittleEndian.PutUint32(m.data[f.Offset:f.Offset+4], math.Float32bits(v))
	return nil
}

// GetF32 reads an F32-typed field.
func (m *Message) GetF32(field string) (float32, error) {
	f, err := m.schema.field(field)
	if err != nil {
		return 0, err
	}
	if f.Type != F32 {
		return 0, fmt.Errorf("schema: field %q is %s, not f32", field, f.Type)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(m.data[f.Offset : f.Offset+4])), nil
}

// SetString sets a String-typed field, truncating to the field's width
// and padding with NUL, matching the raw-bytes semantics of
// usrl_message_set applied to a string's byte representation.
func (m *Message) SetString(field, v string) error {
	return m.SetBytes(field, []byte(v))
}

// GetString reads a String-typed field, trimming trailing NUL padding.
func (m *Message) GetString(field string) (string, error) {
	b, err := m.GetBytes(field)
	if err != nil {
		return "", err
	}
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n]), nil
}

// Encode copies the message's packed bytes into out, matching
// usrl_message_encode. out must be at least TotalSize() bytes.
func (m *Message) Encode(out []byte) (int, error) {
	n := int(m.schema.totalSize)
	if len(out) < n {
		return 0, fmt.Errorf("schema: encode buffer too small: need %d, have %d", n, len(out))
	}
	copy(out, m.data[:n])
	return n, nil
}

// Decode overwrites the message's fields from data, matching
// usrl_message_decode. data must hold at least the schema's total size.
func (m *Message) Decode(data []byte) error {
	n := int(m.schema.totalSize)
	if len(data) < n {
		return fmt.Errorf("schema: decode source too small: need %d, have %d", n, len(data))
	}
	copy(m.data[:n], data[:n])
	return nil
}
