package rec

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf [collection]",
		Short:   "Performance testing tool for the record operations",
		Long:    "Runs upsert, get, list, select and delete benchmarks against a collection. The benchmark records use ids with the prefix __perf and are removed afterwards.",
		Args:    cobra.ExactArgs(1),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__perf"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

type perfRecord struct {
	store.Record
	Counter int    `json:"counter,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. upsert,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different records to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runPerf(cmd *cobra.Command, args []string) error {
	conn, closeConn, err := util.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer closeConn()

	records := store.BindStore[perfRecord](conn, args[0], store.Defaults{})
	if _, err := records.Count(); err != nil {
		return err
	}

	fmt.Println("Performance testing tool for docKV")
	fmt.Println()
	fmt.Printf("Database: %s (version %d)\n", conn.Name(), conn.Version())
	fmt.Printf("Collection: %s\n", records.Name())
	fmt.Printf("Threads: %d, Records: %d\n", perfNumThreads, perfKeySpread)
	fmt.Println()
	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	run := func(test string, fn func(b *testing.B, getKey func(int) string)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test) {
				return
			}
			getKey, iter := getKeys(test)
			b.Cleanup(func() {
				iter(func(k string) {
					if _, err := store.Delete(conn, records.Name(), k, store.DeleteOptions{}); err != nil {
						log.Warningf("(%s) - error deleting record: %v", test, err)
					}
				})
			})
			b.SetParallelism(perfNumThreads)
			fn(b, getKey)
		})
		results[test] = result
		printResult(test, result)
	}

	seed := func(getKey func(int) string) {
		for i := 0; i < perfKeySpread; i++ {
			if _, err := records.Upsert(perfRecord{Record: store.Record{ID: getKey(i)}, Counter: i, Payload: "test"}); err != nil {
				log.Warningf("error seeding record: %v", err)
			}
		}
	}

	run("upsert", func(b *testing.B, getKey func(int) string) {
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				_, err := records.Upsert(perfRecord{Record: store.Record{ID: getKey(counter)}, Counter: counter, Payload: "test"})
				if err != nil {
					log.Warningf("(upsert) - error writing record: %v", err)
				}
				counter++
			}
		})
	})

	run("get", func(b *testing.B, getKey func(int) string) {
		seed(getKey)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := records.Get(getKey(counter)); err != nil {
					log.Warningf("(get) - error reading record: %v", err)
				}
				counter++
			}
		})
	})

	run("list", func(b *testing.B, getKey func(int) string) {
		seed(getKey)
		opts := store.ListOptions{From: getKey(0), To: getKey(perfKeySpread - 1)}
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := records.List(opts); err != nil {
					log.Warningf("(list) - error listing records: %v", err)
				}
			}
		})
	})

	run("select", func(b *testing.B, getKey func(int) string) {
		seed(getKey)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				_, err := records.Select(func(r perfRecord) bool { return r.Counter%2 == 0 })
				if err != nil {
					log.Warningf("(select) - error selecting records: %v", err)
				}
			}
		})
	})

	run("delete", func(b *testing.B, getKey func(int) string) {
		seed(getKey)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := records.Delete(getKey(counter)); err != nil {
					log.Warningf("(delete) - error deleting record: %v", err)
				}
				counter++
			}
		})
	})

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, conn); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", csvPath)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of record ids and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%06d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, conn *store.Conn) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "Database", "Version", "Threads", "Records",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("engine"),
			conn.Name(),
			strconv.FormatUint(conn.Version(), 10),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
