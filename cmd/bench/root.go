package bench

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmendel/idb/cmd/util"
	"github.com/jmendel/idb/lib/engine"
	"github.com/jmendel/idb/lib/fixture"
	"github.com/jmendel/idb/lib/keypath"
)

var (
	// BenchCmd represents the benchmark command
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the in-process engine",
		Long:    "",
		RunE:    run,
		PreRunE: processBenchConfig,
	}
	benchRecords = 10_000
	benchTags    = 16
	benchSkip    = make([]string, 0)
)

func init() {
	// add flags
	key := "records"
	BenchCmd.Flags().Int(key, 10_000, util.WrapString("Number of records to seed before benchmarking"))
	key = "tags"
	BenchCmd.Flags().Int(key, 16, util.WrapString("Number of distinct index key values across the seeded records"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchRecords = viper.GetInt("records")
	benchTags = viper.GetInt("tags")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

// benchResult pairs the wall-clock result with latency percentiles
type benchResult struct {
	testing.BenchmarkResult
	timer metrics.Timer
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Benchmark tool for the idb engine")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Records: %d\n", benchRecords)
	fmt.Printf("Tags:    %d\n", benchTags)
	fmt.Println()

	fmt.Println("starting benchmarks...")

	reg, conn, err := seedBench()
	if err != nil {
		return err
	}
	sched := reg.Scheduler()

	// Create results map
	results := make(map[string]benchResult)

	// runOp opens a transaction, applies op to the store handle and drains
	// the scheduler, so one call is one complete request round trip
	runOp := func(mode engine.Mode, op func(st *engine.StoreHandle) error) error {
		tx, err := conn.CreateTransaction([]string{"items"}, mode)
		if err != nil {
			return err
		}
		st, err := tx.Store("items")
		if err != nil {
			return err
		}
		if err := op(st); err != nil {
			return err
		}
		sched.RunUntilIdle()
		return nil
	}

	measure := func(name string, mode engine.Mode, op func(i int, st *engine.StoreHandle) error) {
		timer := metrics.NewTimer()
		res := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			b.ResetTimer()
			counter := 0
			for i := 0; i < b.N; i++ {
				timer.Time(func() {
					err := runOp(mode, func(st *engine.StoreHandle) error {
						return op(counter, st)
					})
					if err != nil {
						b.Fatalf("(%s) - %v", name, err)
					}
				})
				counter++
			}
		})
		results[name] = benchResult{BenchmarkResult: res, timer: timer}
		printResult(name, results[name])
	}

	measure("put", engine.ReadWrite, func(i int, st *engine.StoreHandle) error {
		_, err := st.Put(benchValue(i % benchRecords))
		return err
	})

	measure("get", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		_, err := st.Get(keypath.NumberKey(float64(i%benchRecords + 1)))
		return err
	})

	measure("get-missing", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		_, err := st.Get(keypath.NumberKey(float64(benchRecords + 1_000_000 + i)))
		return err
	})

	measure("count", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		_, err := st.Count(nil)
		return err
	})

	measure("index-get", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		ix, err := st.Index("by_tag")
		if err != nil {
			return err
		}
		_, err = ix.Get(keypath.StringKey(benchTag(i)))
		return err
	})

	measure("index-get-all", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		ix, err := st.Index("by_tag")
		if err != nil {
			return err
		}
		_, err = ix.GetAll(engine.Only(keypath.StringKey(benchTag(i))), 0)
		return err
	})

	measure("scan", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		_, err := st.GetAllKeys(nil, 0)
		return err
	})

	measure("cursor-walk", engine.ReadOnly, func(i int, st *engine.StoreHandle) error {
		req, err := st.OpenCursor(nil, engine.Next)
		if err != nil {
			return err
		}
		var walk func(res engine.Result)
		walk = func(res engine.Result) {
			if res.Cursor == nil {
				return
			}
			next, err := res.Cursor.Continue()
			if err != nil {
				return
			}
			next.OnSuccess(walk)
		}
		req.OnSuccess(walk)
		return nil
	})

	measure("delete-put", engine.ReadWrite, func(i int, st *engine.StoreHandle) error {
		key := keypath.NumberKey(float64(i%benchRecords + 1))
		if _, err := st.Delete(key); err != nil {
			return err
		}
		_, err := st.Put(benchValue(i % benchRecords))
		return err
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func benchTag(i int) string {
	return fmt.Sprintf("tag-%d", i%benchTags)
}

// benchValue builds a record whose primary key resolves to i+1 via the
// store key path, so puts overwrite the seeded records in place
func benchValue(i int) keypath.Value {
	return keypath.Object(map[string]keypath.Value{
		"id":   keypath.Number(float64(i + 1)),
		"name": keypath.String(fmt.Sprintf("record-%d", i)),
		"tag":  keypath.String(benchTag(i)),
	})
}

// seedBench creates a registry with one database and a tagged store,
// returning an open connection to it
func seedBench() (*engine.Registry, *engine.Conn, error) {
	reg := engine.NewRegistry()

	fx := fixture.Fixture{Databases: []fixture.DatabaseFixture{{
		Name:    "bench",
		Version: 1,
		Stores: []fixture.StoreFixture{{
			Name:    "items",
			KeyPath: "id",
			Indices: []fixture.IndexFixture{
				{Name: "by_tag", KeyPath: "tag"},
			},
		}},
	}}}
	records := make([]fixture.RecordFixture, 0, benchRecords)
	for i := 0; i < benchRecords; i++ {
		records = append(records, fixture.RecordFixture{Value: benchValue(i)})
	}
	fx.Databases[0].Stores[0].Records = records

	if err := fixture.Seed(reg, fx); err != nil {
		return nil, nil, err
	}

	open := reg.Open("bench", 1)
	reg.Scheduler().RunUntilIdle()
	if err := open.Err(); err != nil {
		return nil, nil, err
	}
	res, _ := open.Result()
	return reg, res.Conn, nil
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result benchResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p99 := time.Duration(int64(result.timer.Percentile(0.99)))

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp99 %s\n",
		test, nsPerOp, time.Duration(int64(nsPerOp)), opsPerSec, p99)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]benchResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"P50", "P95", "P99", "Skipped",
		"Records", "Tags",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(int64(nsPerOp)).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(int64(result.timer.Percentile(0.50))).String(),
			time.Duration(int64(result.timer.Percentile(0.95))).String(),
			time.Duration(int64(result.timer.Percentile(0.99))).String(),
			skipped,
			strconv.Itoa(benchRecords),
			strconv.Itoa(benchTags),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
