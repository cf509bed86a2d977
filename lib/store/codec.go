package store

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// object is a decoded JSON object with undecoded values
type object map[string]jsoniter.RawMessage

var errNotAnObject = errors.New("record must encode to a JSON object")

// toObject encodes v and decodes the result as a JSON object.
func toObject(v any) (object, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return parseObject(raw)
}

func parseObject(raw []byte) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errNotAnObject
	}
	if obj == nil {
		return nil, errNotAnObject
	}
	return obj, nil
}

// str returns the string stored under key or "" if it is missing or not a string.
func (o object) str(key string) string {
	var s string
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// truthy returns the boolean stored under key or false if it is missing or not a boolean.
func (o object) truthy(key string) bool {
	var b bool
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}

func (o object) set(key string, v any) {
	raw, _ := json.Marshal(v)
	o[key] = raw
}

// decode decodes a stored document into T.
func decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// empty returns the "not found" value: T decoded from an empty JSON object.
// Structs are zero values, maps are empty and non-nil, pointers point to a zero value.
func empty[T any]() (T, error) {
	return decode[T]([]byte("{}"))
}

// isSoftDeleted reads the is_delete flag of a stored document without decoding it.
func isSoftDeleted(raw []byte) bool {
	return jsoniter.Get(raw, fieldIsDelete).ToBool()
}
