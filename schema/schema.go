package schema

import "encoding/json"

// Schema is the interface implemented by every structured payload exchanged
// with a model or a tool
type Schema interface {
	String() string
}

// Stringify returns the JSON representation of a schema. String schemas are
// returned verbatim.
func Stringify(s any) string {
	return string(ToBytes(s))
}

// ToBytes returns the JSON encoding of a schema
func ToBytes(s any) []byte {
	switch v := s.(type) {
	case String:
		return []byte(v)
	case *String:
		return []byte(*v)
	case json.RawMessage:
		return v
	}
	bs, _ := json.Marshal(s)
	return bs
}
