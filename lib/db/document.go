package db

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/docKV/lib/db/keys"
	jsoniter "github.com/json-iterator/go"
)

// --------------------------------------------------------------------------
// Document helpers shared by the engines
// --------------------------------------------------------------------------

// DefaultKeyPath is the primary key attribute of object stores created without a key path.
const DefaultKeyPath = "id"

// ExtractKey reads the attribute at keyPath (dot separated) from a JSON document
// and returns its encoded index key. The boolean is false if the attribute is
// missing or not a string or number; such documents are not indexed.
func ExtractKey(value []byte, keyPath string) ([]byte, bool) {
	path := make([]interface{}, 0, strings.Count(keyPath, ".")+1)
	for _, p := range strings.Split(keyPath, ".") {
		path = append(path, p)
	}

	attr := jsoniter.Get(value, path...)
	if attr.LastError() != nil {
		return nil, false
	}

	var (
		enc []byte
		err error
	)
	switch attr.ValueType() {
	case jsoniter.StringValue:
		enc, err = keys.Encode(attr.ToString())
	case jsoniter.NumberValue:
		enc, err = keys.Encode(attr.ToFloat64())
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return enc, true
}

// IndexEntry builds the key of an index entry: the encoded index key followed by the primary key.
func IndexEntry(indexKey []byte, primaryKey string) []byte {
	entry := make([]byte, 0, len(indexKey)+len(primaryKey))
	entry = append(entry, indexKey...)
	return append(entry, primaryKey...)
}

// SplitIndexEntry is the inverse of IndexEntry.
func SplitIndexEntry(entry []byte) (indexKey []byte, primaryKey string, err error) {
	n, err := keys.Len(entry)
	if err != nil {
		return nil, "", fmt.Errorf("corrupt index entry: %w", err)
	}
	return entry[:n], string(entry[n:]), nil
}

// ValidateName rejects empty object store and index names.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	return nil
}
