package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/docKV/lib/db"
)

// RunEngineBenchmarks runs all benchmarks for an engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory(b), false)
		})

		b.Run("PutIndexed", func(b *testing.B) {
			benchmarkPut(b, factory(b), true)
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(b))
		})

		b.Run("Cursor", func(b *testing.B) {
			benchmarkCursor(b, factory(b))
		})

		b.Run("IndexRange", func(b *testing.B) {
			benchmarkIndexRange(b, factory(b))
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// openBench opens a database with one "docs" store and a "group" index
func openBench(b *testing.B, engine db.Engine) db.Conn {
	return open(b, engine, "bench", 1, func(s db.Schema) error {
		if err := s.CreateObjectStore("docs", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		if err := s.CreateObjectStore("plain", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		return s.CreateIndex("docs", "group", "group", db.IndexOptions{})
	})
}

func benchDoc(i int) (string, []byte) {
	key := fmt.Sprintf("key-%08d", i)
	return key, []byte(fmt.Sprintf(`{"id":%q,"group":%d,"payload":"value-%d"}`, key, i%100, i))
}

// fill writes n documents in batches of 1000
func fill(b *testing.B, conn db.Conn, n int) {
	for start := 0; start < n; start += 1000 {
		err := conn.Update(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			for i := start; i < start+1000 && i < n; i++ {
				key, value := benchDoc(i)
				if err := s.Put(key, value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatalf("Unexpected error during fill: %v", err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, engine db.Engine, indexed bool) {
	conn := openBench(b, engine)
	store := "plain"
	if indexed {
		store = "docs"
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key, value := benchDoc(int(counter.Add(1)))
			err := conn.Update(func(tx db.Tx) error {
				s, err := tx.ObjectStore(store)
				if err != nil {
					return err
				}
				return s.Put(key, value)
			})
			if err != nil {
				b.Errorf("Unexpected error during Put: %v", err)
			}
		}
	})
}

func benchmarkGet(b *testing.B, engine db.Engine) {
	conn := openBench(b, engine)
	const n = 10000
	fill(b, conn, n)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key, _ := benchDoc(r.Intn(n))
			err := conn.View(func(tx db.Tx) error {
				s, err := tx.ObjectStore("docs")
				if err != nil {
					return err
				}
				_, _, err = s.Get(key)
				return err
			})
			if err != nil {
				b.Errorf("Unexpected error during Get: %v", err)
			}
		}
	})
}

func benchmarkCursor(b *testing.B, engine db.Engine) {
	conn := openBench(b, engine)
	const n = 10000
	fill(b, conn, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lower, _ := benchDoc(i % (n - 100))
		upper, _ := benchDoc(i%(n-100) + 100)
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			_, err = s.GetAll(db.Bound(lower, upper, false, true))
			return err
		})
		if err != nil {
			b.Fatalf("Unexpected error during Cursor: %v", err)
		}
	}
}

func benchmarkIndexRange(b *testing.B, engine db.Engine) {
	conn := openBench(b, engine)
	const n = 10000
	fill(b, conn, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			idx, err := s.Index("group")
			if err != nil {
				return err
			}
			_, err = idx.GetAll(db.Only(i % 100))
			return err
		})
		if err != nil {
			b.Fatalf("Unexpected error during IndexRange: %v", err)
		}
	}
}

func benchmarkSaveLoad(b *testing.B, factory EngineFactory) {
	engine := factory(b)
	requireFeature(b, engine, db.FeatureSave|db.FeatureLoad)

	conn := openBench(b, engine)
	fill(b, conn, 10000)

	snapshotter := engine.(db.Snapshotter)
	var snapshot bytes.Buffer
	if err := snapshotter.Save("bench", &snapshot); err != nil {
		b.Fatalf("Unexpected error during Save: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		var buf bytes.Buffer
		for i := 0; i < b.N; i++ {
			buf.Reset()
			if err := snapshotter.Save("bench", &buf); err != nil {
				b.Fatalf("Unexpected error during Save: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory(b).(db.Snapshotter)
		for i := 0; i < b.N; i++ {
			if err := target.Load("bench", bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("Unexpected error during Load: %v", err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, engine db.Engine) {
	conn := openBench(b, engine)
	const n = 10000
	fill(b, conn, n)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key, value := benchDoc(r.Intn(n))
			var err error
			switch op := r.Intn(10); {
			case op < 7:
				err = conn.View(func(tx db.Tx) error {
					s, err := tx.ObjectStore("docs")
					if err != nil {
						return err
					}
					_, _, err = s.Get(key)
					return err
				})
			case op < 9:
				err = conn.Update(func(tx db.Tx) error {
					s, err := tx.ObjectStore("docs")
					if err != nil {
						return err
					}
					return s.Put(key, value)
				})
			default:
				err = conn.Update(func(tx db.Tx) error {
					s, err := tx.ObjectStore("docs")
					if err != nil {
						return err
					}
					return s.Delete(key)
				})
			}
			if err != nil {
				b.Errorf("Unexpected error during MixedUsage: %v", err)
			}
		}
	})
}
