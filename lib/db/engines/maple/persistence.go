package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple/internal"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	formatVersion = 4            // Snapshot format version
)

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes the named database to w.
//
// Thread-safety: Save only reads the committed state and runs concurrently with
// readwrite transactions. Writes committed after Save started are not included.
func (maple *mapleImpl) Save(name string, w io.Writer) error {
	d, ok := maple.databases.Load(name)
	if !ok {
		return fmt.Errorf("save %s: %w", name, db.ErrNotFound)
	}

	// committed states are never modified, transactions replace them
	d.mu.RLock()
	version, state := d.version, d.state
	d.mu.RUnlock()

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(state))); err != nil {
		return err
	}

	for _, storeName := range state.Names() {
		s := state[storeName]
		if err := writeString(bw, s.Name); err != nil {
			return err
		}
		if err := writeString(bw, s.KeyPath); err != nil {
			return err
		}

		// index definitions, entries are rebuilt on load
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(s.Indexes))); err != nil {
			return err
		}
		for _, indexName := range s.IndexNames() {
			idx := s.Indexes[indexName]
			if err := writeString(bw, idx.Name); err != nil {
				return err
			}
			if err := writeString(bw, idx.KeyPath); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, idx.Unique); err != nil {
				return err
			}
		}

		if err := binary.Write(bw, binary.LittleEndian, uint64(s.Records.Len())); err != nil {
			return err
		}
		var writeErr error
		s.Records.Ascend(func(r internal.Record) bool {
			if writeErr = writeString(bw, r.Key); writeErr != nil {
				return false
			}
			if writeErr = writeBytes(bw, r.Value); writeErr != nil {
				return false
			}
			return true
		})
		if writeErr != nil {
			return writeErr
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the named database with a snapshot written by Save.
//
// Thread-safety: Load fails while connections to the database are open.
func (maple *mapleImpl) Load(name string, r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var format uint8
	if err := binary.Read(br, binary.LittleEndian, &format); err != nil {
		return err
	}
	if int(format) != formatVersion {
		return fmt.Errorf("unsupported format version: %d (expected %d)", format, formatVersion)
	}

	var version uint64
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	var storeCount uint32
	if err := binary.Read(br, binary.LittleEndian, &storeCount); err != nil {
		return err
	}

	state := make(internal.State, storeCount)
	for i := uint32(0); i < storeCount; i++ {
		s, indexes, err := readStore(br)
		if err != nil {
			return err
		}
		for _, idx := range indexes {
			if err := s.AddIndex(idx); err != nil {
				return err
			}
		}
		state[s.Name] = s
	}

	d := maple.lookup(name)
	d.tracker.Lock()
	defer d.tracker.Unlock()

	if open := d.tracker.OpenLocked(); open > 0 {
		return fmt.Errorf("load %s: %d connections are open", name, open)
	}

	d.mu.Lock()
	d.version = version
	d.state = state
	d.mu.Unlock()

	log.Infof("loaded database %s (version %d, %d object stores)", name, version, len(state))
	return nil
}

// readStore reads one object store. The returned indexes are not yet attached.
func readStore(br *bufio.Reader) (*internal.Store, []*internal.Index, error) {
	name, err := readString(br)
	if err != nil {
		return nil, nil, err
	}
	keyPath, err := readString(br)
	if err != nil {
		return nil, nil, err
	}
	s := internal.NewStore(name, keyPath)

	var indexCount uint32
	if err := binary.Read(br, binary.LittleEndian, &indexCount); err != nil {
		return nil, nil, err
	}
	indexes := make([]*internal.Index, 0, indexCount)
	for i := uint32(0); i < indexCount; i++ {
		indexName, err := readString(br)
		if err != nil {
			return nil, nil, err
		}
		indexKeyPath, err := readString(br)
		if err != nil {
			return nil, nil, err
		}
		var unique bool
		if err := binary.Read(br, binary.LittleEndian, &unique); err != nil {
			return nil, nil, err
		}
		indexes = append(indexes, internal.NewIndex(indexName, indexKeyPath, unique))
	}

	var recordCount uint64
	if err := binary.Read(br, binary.LittleEndian, &recordCount); err != nil {
		return nil, nil, err
	}
	for i := uint64(0); i < recordCount; i++ {
		key, err := readString(br)
		if err != nil {
			return nil, nil, err
		}
		value, err := readBytes(br)
		if err != nil {
			return nil, nil, err
		}
		s.Records.ReplaceOrInsert(internal.Record{Key: key, Value: value})
	}
	return s, indexes, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
