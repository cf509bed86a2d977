package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/keys"
)

// --------------------------------------------------------------------------
// Record Access Primitives
// --------------------------------------------------------------------------
//
// Every primitive runs in its own transaction: reads in a readonly one, writes
// in a readwrite one. Upsert reads the existing record and writes the merged one
// in two separate transactions, a concurrent write in between can be lost.

// Get returns the record stored under key. If there is none, it returns the empty
// value (T decoded from "{}"), check the ID to tell the two apart.
func Get[T any](c *Conn, collection, key string) (result T, err error) {
	defer observe("get", time.Now(), &err)

	var raw []byte
	err = c.view(collection, func(s db.ObjectStore) error {
		v, loaded, err := s.Get(key)
		if loaded {
			raw = v
		}
		return err
	})
	if err != nil {
		return result, readError("get", collection, err)
	}
	return decodeOrEmpty[T]("get", collection, raw)
}

// GetByIndex returns the first record (in primary key order) whose attribute of
// the given index equals key. If there is none, it returns the empty value like Get.
func GetByIndex[T any](c *Conn, collection, index string, key any) (result T, err error) {
	defer observe("get", time.Now(), &err)

	var raw []byte
	err = c.view(collection, func(s db.ObjectStore) error {
		idx, err := s.Index(index)
		if err != nil {
			return err
		}
		v, loaded, err := idx.Get(key)
		if loaded {
			raw = v
		}
		return err
	})
	if err != nil {
		return result, readError("get", collection, err)
	}
	return decodeOrEmpty[T]("get", collection, raw)
}

// Count returns the number of records of the collection, soft-deleted ones included.
func Count(c *Conn, collection string) (n int, err error) {
	defer observe("count", time.Now(), &err)

	err = c.view(collection, func(s db.ObjectStore) error {
		n, err = s.Count(nil)
		return err
	})
	if err != nil {
		return 0, readError("count", collection, err)
	}
	return n, nil
}

// List returns the records in the range described by opts, in ascending key order.
// With opts.Index set, the range applies to the index keys. Soft-deleted records
// are included.
func List[T any](c *Conn, collection string, opts ListOptions) (result []T, err error) {
	defer observe("list", time.Now(), &err)

	var values [][]byte
	err = c.view(collection, func(s db.ObjectStore) error {
		if opts.Index == "" {
			values, err = s.GetAll(opts.keyRange())
			return err
		}
		idx, err := s.Index(opts.Index)
		if err != nil {
			return err
		}
		values, err = idx.GetAll(opts.keyRange())
		return err
	})
	if err != nil {
		return nil, readError("list", collection, err)
	}

	result = make([]T, 0, len(values))
	for _, raw := range values {
		v, err := decode[T](raw)
		if err != nil {
			return nil, readError("list", collection, fmt.Errorf("decoding record: %w", err))
		}
		result = append(result, v)
	}
	return result, nil
}

// keyRange builds the key range of the options. Rules in priority order:
// From == To selects exactly that key, From and To select the inclusive range,
// only From or only To an inclusive half-open range, neither everything.
func (o ListOptions) keyRange() *db.KeyRange {
	switch {
	case o.From != nil && o.To != nil && sameKey(o.From, o.To):
		return db.Only(o.From)
	case o.From != nil && o.To != nil:
		return db.Bound(o.From, o.To, false, false)
	case o.From != nil:
		return db.LowerBound(o.From, false)
	case o.To != nil:
		return db.UpperBound(o.To, false)
	default:
		return nil
	}
}

// sameKey compares two keys by their encoding, so 1 and 1.0 are the same key.
func sameKey(a, b any) bool {
	ea, err := keys.Encode(a)
	if err != nil {
		return false
	}
	eb, err := keys.Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// Select scans the collection in primary key order and returns the records for
// which where returns true. Soft-deleted records are skipped unless
// opts.IncludeDeleted is set. A nil where selects every record.
//
// A panic in where is logged and counts as false for that record; records that
// can not be decoded into T are logged and skipped. Neither aborts the scan.
func Select[T any](c *Conn, collection string, where func(T) bool, opts SelectOptions) (result []T, err error) {
	defer observe("select", time.Now(), &err)

	result = make([]T, 0)
	err = c.view(collection, func(s db.ObjectStore) error {
		return s.Cursor(nil, func(key string, raw []byte) (bool, error) {
			if !opts.IncludeDeleted && isSoftDeleted(raw) {
				return true, nil
			}
			v, err := decode[T](raw)
			if err != nil {
				log.Warningf("select %s: skipping record %s: %v", collection, key, err)
				return true, nil
			}
			if where == nil || evaluate(collection, key, where, v) {
				result = append(result, v)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, readError("select", collection, err)
	}
	return result, nil
}

// evaluate calls where and treats a panic as false.
func evaluate[T any](collection, key string, where func(T) bool, v T) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("select %s: predicate panicked on record %s: %v", collection, key, r)
			keep = false
		}
	}()
	return where(v)
}

// Upsert inserts record or merges it into the stored record with the same id and
// returns the id.
//
// If record carries an id and a record with that id exists, the fields set in
// record overwrite the stored ones, all other stored fields are kept. Then the
// reserved fields are defaulted: an empty id is generated, an empty inserted is
// set to now, updated is set to now unless record carries its own updated, deleted
// defaults to "" and is_delete to false.
//
// record must encode to a JSON object. Fields with omitempty that are unset do not
// take part in the merge.
func Upsert[T any](c *Conn, collection string, record T, opts UpsertOptions) (id string, err error) {
	defer observe("upsert", time.Now(), &err)

	genID, now := opts.GenID, opts.Now
	if genID == nil {
		genID = DefaultGenID
	}
	if now == nil {
		now = DefaultNow
	}

	input, err := toObject(record)
	if err != nil {
		return "", writeError(collection, err)
	}

	callerUpdated := input.str(fieldUpdated)

	// merge with the existing record
	merged := input
	if id := input.str(fieldID); id != "" {
		var existing []byte
		err = c.view(collection, func(s db.ObjectStore) error {
			v, loaded, err := s.Get(id)
			if loaded {
				existing = v
			}
			return err
		})
		if err != nil {
			return "", writeError(collection, err)
		}
		if existing != nil {
			stored, err := parseObject(existing)
			if err != nil {
				return "", writeError(collection, fmt.Errorf("stored record %s: %w", id, err))
			}
			for k, v := range input {
				stored[k] = v
			}
			merged = stored
		}
	}

	// defaults
	ts := now()
	id = merged.str(fieldID)
	if id == "" {
		id = genID()
		merged.set(fieldID, id)
	}
	if merged.str(fieldInserted) == "" {
		merged.set(fieldInserted, ts)
	}
	if callerUpdated == "" {
		merged.set(fieldUpdated, ts)
	}
	if merged.str(fieldDeleted) == "" {
		merged.set(fieldDeleted, "")
	}
	if !merged.truthy(fieldIsDelete) {
		merged.set(fieldIsDelete, false)
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return "", writeError(collection, err)
	}

	err = c.update(collection, func(s db.ObjectStore) error {
		return s.Put(id, doc)
	})
	if err != nil {
		return "", writeError(collection, err)
	}
	return id, nil
}

// Delete removes the record stored under key.
//
// With opts.Logical the record is soft-deleted instead: Delete upserts
// {id: key, is_delete: true, deleted: now} which keeps all other fields. There
// is no existence check, soft-deleting a missing key stores a new soft-deleted
// record. A physical delete of a missing key succeeds as well.
func Delete(c *Conn, collection, key string, opts DeleteOptions) (ok bool, err error) {
	if opts.Logical {
		now := opts.Now
		if now == nil {
			now = DefaultNow
		}
		ts := now()
		tombstone := map[string]any{
			fieldID:       key,
			fieldIsDelete: true,
			fieldDeleted:  ts,
		}
		// updated and deleted share the timestamp
		_, err := Upsert(c, collection, tombstone, UpsertOptions{
			GenID: opts.GenID,
			Now:   func() string { return ts },
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	defer observe("delete", time.Now(), &err)

	err = c.update(collection, func(s db.ObjectStore) error {
		return s.Delete(key)
	})
	if err != nil {
		return false, NewError(RetCDeleteError, "delete "+collection, "could not delete record "+key, err)
	}
	return true, nil
}

// Clear removes every record of the collection.
func Clear(c *Conn, collection string) (ok bool, err error) {
	defer observe("clear", time.Now(), &err)

	err = c.update(collection, func(s db.ObjectStore) error {
		return s.Clear()
	})
	if err != nil {
		return false, NewError(RetCClearError, "clear "+collection, "could not clear collection", err)
	}
	return true, nil
}

// Info returns statistics about the database of the connection.
func Info(c *Conn) (info db.DatabaseInfo, err error) {
	defer observe("info", time.Now(), &err)

	if c == nil || c.conn == nil {
		return info, NewError(RetCReadError, "info", "could not read database info", errNilConn)
	}
	return c.conn.Info(), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func decodeOrEmpty[T any](op, collection string, raw []byte) (T, error) {
	var (
		v   T
		err error
	)
	if raw == nil {
		v, err = empty[T]()
	} else {
		v, err = decode[T](raw)
	}
	if err != nil {
		return v, readError(op, collection, fmt.Errorf("decoding record: %w", err))
	}
	return v, nil
}

func readError(op, collection string, err error) *Error {
	msg := "could not read records"
	if isMissing(err) {
		msg = "collection or index does not exist"
	}
	return NewError(RetCReadError, op+" "+collection, msg, err)
}

func writeError(collection string, err error) *Error {
	return NewError(RetCWriteError, "upsert "+collection, "could not write record", err)
}
