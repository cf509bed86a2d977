package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultDBName is used by Connect and Drop when no name is given.
	DefaultDBName = "dockv"
	// DefaultDBVersion is used by Connect when no version is given.
	DefaultDBVersion uint64 = 1
)

// DefaultGenID returns a random UUID (version 4).
func DefaultGenID() string {
	return uuid.NewString()
}

// DefaultNow returns the current UTC time in RFC 3339 format with nanoseconds.
// The format sorts lexicographically in time order.
func DefaultNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// --------------------------------------------------------------------------
// Base Record
// --------------------------------------------------------------------------

// Record holds the reserved fields every persisted entity carries. Domain types
// embed it:
//
//	type User struct {
//		store.Record
//		Name string `json:"name,omitempty"`
//	}
//
// All fields are omitempty so that a partial record passed to Upsert only
// overwrites the fields it sets. Domain fields should be omitempty for the
// same reason.
type Record struct {
	ID       string `json:"id,omitempty"`
	Inserted string `json:"inserted,omitempty"`
	Updated  string `json:"updated,omitempty"`
	Deleted  string `json:"deleted,omitempty"`
	IsDelete bool   `json:"is_delete,omitempty"`
}

// reserved JSON keys of Record
const (
	fieldID       = "id"
	fieldInserted = "inserted"
	fieldUpdated  = "updated"
	fieldDeleted  = "deleted"
	fieldIsDelete = "is_delete"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// UpgradeFunc declares collections and indexes. It runs inside the upgrade
// transaction of Connect, see CreateStore.
type UpgradeFunc func(s db.Schema) error

// IndexDef declares a secondary index of a collection.
type IndexDef struct {
	Name    string
	KeyPath string // attribute (dot path) holding the index key, defaults to Name
	Unique  bool
}

// ListOptions selects the range returned by List.
// From and To are primary keys (strings) or, with Index set, index keys
// (strings or numbers). nil means unbounded.
type ListOptions struct {
	Index string
	From  any
	To    any
}

// SelectOptions configures Select.
type SelectOptions struct {
	IncludeDeleted bool // also evaluate soft-deleted records
}

// UpsertOptions configures Upsert. nil functions fall back to DefaultGenID and DefaultNow.
type UpsertOptions struct {
	GenID func() string
	Now   func() string
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	Logical bool // soft delete: set is_delete and deleted instead of removing the record
	Now     func() string
	GenID   func() string
}

// Defaults configure the operations of a Store or BoundStore.
type Defaults struct {
	GenID         func() string
	Now           func() string
	LogicalDelete *bool // nil means true
}

func (d Defaults) withFallbacks() Defaults {
	if d.GenID == nil {
		d.GenID = DefaultGenID
	}
	if d.Now == nil {
		d.Now = DefaultNow
	}
	if d.LogicalDelete == nil {
		logical := true
		d.LogicalDelete = &logical
	}
	return d
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// the failing operation and the underlying error.
type Error struct {
	Code RetCode // The return code
	Op   string  // The failing operation (e.g. "upsert users")
	Msg  string  // The error message.
	Err  error   // The underlying error, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%s): %s", e.Code, e.Op, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, op, msg string, err error) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  msg,
		Err:  err,
	}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess         RetCode = iota // 0: Operation executed successfully.
	RetCConnectionError                // 1: Opening the database or its upgrade failed.
	RetCDropError                      // 2: Dropping the database failed.
	RetCCloseError                     // 3: Closing the connection failed.
	RetCReadError                      // 4: A read (get, count, list, select, info) failed.
	RetCWriteError                     // 5: An upsert failed.
	RetCDeleteError                    // 6: A physical delete failed.
	RetCClearError                     // 7: Clearing a collection failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConnectionError:
		return "ConnectionError"
	case RetCDropError:
		return "DropError"
	case RetCCloseError:
		return "CloseError"
	case RetCReadError:
		return "ReadError"
	case RetCWriteError:
		return "WriteError"
	case RetCDeleteError:
		return "DeleteError"
	case RetCClearError:
		return "ClearError"
	default:
		return "Unknown"
	}
}
