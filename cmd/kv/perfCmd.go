package kv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/shmkv/cmd/util"
	"github.com/ValentinKolb/shmkv/lib/codec"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/store"
	"github.com/panjf2000/ants/v2"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for shared stores",
		Long: util.WrapString("Runs every test with --workers concurrent store instances, each doing --rounds " +
			"operations on the selected segment. The add test checks that no increment was lost."),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfVarPrefix  = "__perf"
	perfNumWorkers = 4
	perfRounds     = 1000
	perfSkip       = make([]string, 0)
)

// perfTest is one operation measured by the perf command
type perfTest struct {
	name   string
	op     func(s store.ISharedStore, worker, round int) error
	verify func() error
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Tests to skip (comma separated - e.g. put,get)"))
	key = "workers"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of concurrent store instances"))
	key = "rounds"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per worker and test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumWorkers = max(viper.GetInt("workers"), 1)
	perfRounds = max(viper.GetInt("rounds"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for shared stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(kvConfig.String())
	fmt.Printf("Segment: %s (%s)\n", kvStore.SegmentKey(), kvMutex.Backend())
	fmt.Printf("Workers: %d, Rounds: %d\n", perfNumWorkers, perfRounds)
	fmt.Println()

	fmt.Println("starting tests...")

	counter := perfVarPrefix + "-counter"
	start, err := kvStore.GetVar(counter, int64(0))
	if err != nil {
		return err
	}
	startValue, ok := codec.ToInt64(start)
	if !ok {
		return fmt.Errorf("variable %q is not an integer: %v", counter, start)
	}

	tests := []perfTest{
		{
			name: "add",
			op: func(s store.ISharedStore, _, _ int) error {
				_, err := s.AddToVar(counter, int64(1))
				return err
			},
			verify: func() error {
				v, err := kvStore.GetVar(counter, int64(0))
				if err != nil {
					return err
				}
				want := startValue + int64(perfNumWorkers*perfRounds)
				if got, _ := codec.ToInt64(v); got != want {
					return fmt.Errorf("lost updates: counter is %v, expected %d", v, want)
				}
				return nil
			},
		},
		{
			name: "put",
			op: func(s store.ISharedStore, worker, round int) error {
				return s.PutVar(workerVar(worker), round)
			},
		},
		{
			name: "get",
			op: func(s store.ISharedStore, worker, _ int) error {
				_, err := s.GetVar(workerVar(worker), nil)
				return err
			},
		},
		{
			name: "has",
			op: func(s store.ISharedStore, worker, _ int) error {
				_, err := s.HasVar(workerVar(worker))
				return err
			},
		},
	}

	results := make(map[string]gometrics.Timer)
	var runErr error
	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, nil)
			continue
		}
		timer, err := runTest(test)
		if err == nil && test.verify != nil {
			err = test.verify()
		}
		if err != nil {
			runErr = fmt.Errorf("test %s failed: %w", test.name, err)
			break
		}
		results[test.name] = timer
		printResult(test.name, timer)
	}

	// Remove test variables so the segment can be destroyed
	for _, name := range append([]string{counter}, workerVars()...) {
		if found, err := kvStore.HasVar(name); err == nil && found {
			if err := kvStore.RemoveVar(name); err != nil {
				log.Warningf("removing %s failed: %v", name, err)
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, kvConfig); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	}

	return nil
}

// runTest runs one test on perfNumWorkers store instances in a goroutine pool
func runTest(test perfTest) (gometrics.Timer, error) {
	pool, err := ants.NewPool(perfNumWorkers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		timer = gometrics.NewTimer()
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
	)
	defer timer.Stop()
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for w := 0; w < perfNumWorkers; w++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			// every worker uses its own instances, like independent processes would
			m, s, err := openStore(kvConfig)
			if err != nil {
				fail(err)
				return
			}
			defer func() {
				_ = s.Close()
				_ = m.Close()
			}()

			for r := 0; r < perfRounds; r++ {
				start := time.Now()
				if err := test.op(s, w, r); err != nil {
					fail(err)
					return
				}
				timer.UpdateSince(start)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
		}
	}
	wg.Wait()

	return timer.Snapshot(), errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

func workerVar(worker int) string {
	return fmt.Sprintf("%s-worker-%d", perfVarPrefix, worker)
}

func workerVars() []string {
	names := make([]string, perfNumWorkers)
	for i := range names {
		names[i] = workerVar(i)
	}
	return names
}

// printResult prints the result of a test in a formatted way
func printResult(test string, timer gometrics.Timer) {
	if timer == nil || timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(timer.Mean(), 1) // prevent division by zero
	opsPerSec := float64(perfNumWorkers) / (nsPerOp / 1e9)
	p99 := time.Duration(timer.Percentile(0.99))

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op, p99 %s)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), p99, opsPerSec)
}

// writeResultsToCSV writes test results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]gometrics.Timer, config *common.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Ops", "NsPerOp", "P50Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Backend", "Serializer", "Workers", "Rounds",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		nsPerOp := math.Max(timer.Mean(), 1)
		ps := timer.Percentiles([]float64{0.5, 0.99})
		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(timer.Max(), 10),
			fmt.Sprintf("%.0f", float64(perfNumWorkers)/(nsPerOp/1e9)),
			string(kvMutex.Backend()),
			config.Serializer,
			strconv.Itoa(perfNumWorkers),
			strconv.Itoa(perfRounds),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}

	return nil
}
