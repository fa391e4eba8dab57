package schema

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// DecodeJSON fills a Message's fields from a JSON object, looking each
// field up by name with gjson instead of a full json.Unmarshal — useful
// when the wire payload is JSON produced outside this repo (a demo
// publisher, a REPL operator) rather than another Message's Encode
// output. Fields absent from the JSON are left untouched.
func DecodeJSON(m *Message, doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("schema: invalid JSON document")
	}
	for _, f := range m.schema.fields {
		res := gjson.GetBytes(doc, f.Name)
		if !res.Exists() {
			continue
		}
		var err error
		switch f.Type {
		case U64, I64:
			err = m.SetU64(f.Name, uint64(res.Int()))
		case U32, I32:
			err = m.SetU32(f.Name, uint32(res.Int()))
		case F64:
			err = m.SetF64(f.Name, res.Float())
		case F32:
			err = m.SetF32(f.Name, float32(res.Float()))
		case String, Bytes:
			err = m.SetString(f.Name, res.String())
		}
		if err != nil {
			return fmt.Errorf("schema: field %q: %w", f.Name, err)
		}
	}
	return nil
}

// EncodeJSON renders a Message's fields as a pretty-printed JSON object.
// Integer-typed fields are emitted as JSON numbers; Bytes/String fields as
// JSON strings.
func EncodeJSON(m *Message) ([]byte, error) {
	out := make(map[string]any, len(m.schema.fields))
	for _, f := range m.schema.fields {
		switch f.Type {
		case U64, I64:
			v, err := m.GetU64(f.Name)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		case U32, I32:
			v, err := m.GetU32(f.Name)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		case F64:
			v, err := m.GetF64(f.Name)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		case F32:
			v, err := m.GetF32(f.Name)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		case String, Bytes:
			v, err := m.GetString(f.Name)
			if err != nil {
				return nil, fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(raw), nil
}
