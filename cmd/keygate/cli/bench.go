package cli

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/service"
)

func newBenchCmd() *cobra.Command {
	var (
		concurrency int
		rounds      int
		keep        bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Race concurrent redemptions of a fresh key",
		Long: `Generate a key in the configured store and redeem it from many goroutines at
once, checking that exactly one redemption records first use. Repeats for the
given number of rounds and reports latency percentiles. The generated keys are
banned afterwards unless --keep is set.`,
		Example: `  keygate bench --concurrency 50
  keygate bench --concurrency 200 --rounds 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), concurrency, rounds, keep)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 20, "Concurrent redemptions per key")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "Number of keys to race")
	cmd.Flags().BoolVar(&keep, "keep", false, "Leave the generated keys active")

	return cmd
}

// memStats captures a snapshot of memory statistics for reporting.
type memStats struct {
	HeapAlloc uint64
	Sys       uint64
}

func captureMemStats() memStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memStats{HeapAlloc: m.HeapAlloc, Sys: m.Sys}
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := len(sorted) * p / 100
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// raceResult is the outcome of one round.
type raceResult struct {
	firstUses int64
	granted   int64
	failed    int64
	latencies []time.Duration
}

// raceRedeem releases concurrency goroutines at once against the same key.
func raceRedeem(ctx context.Context, svc *service.RedemptionService, key string, concurrency int) raceResult {
	var (
		res     raceResult
		mu      sync.Mutex
		wg      sync.WaitGroup
		start   = make(chan struct{})
		first   atomic.Int64
		granted atomic.Int64
		failed  atomic.Int64
	)
	res.latencies = make([]time.Duration, 0, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			t0 := time.Now()
			v, err := svc.Redeem(ctx, service.RedeemRequest{
				Key:              key,
				OriginAddress:    "127.0.0.1",
				ClientDescriptor: "keygate-bench/" + strconv.Itoa(i),
			})
			elapsed := time.Since(t0)
			if err != nil {
				failed.Add(1)
				return
			}
			granted.Add(1)
			if v.FirstUse {
				first.Add(1)
			}
			mu.Lock()
			res.latencies = append(res.latencies, elapsed)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	res.firstUses = first.Load()
	res.granted = granted.Load()
	res.failed = failed.Load()
	return res
}

func runBench(ctx context.Context, concurrency, rounds int, keep bool) error {
	if concurrency < 1 || rounds < 1 {
		return fmt.Errorf("--concurrency and --rounds must be at least 1")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	admin := a.adminService()
	svc := a.redemptionService()

	fmt.Print(banner)
	fmt.Println("keygate redemption race")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Store: %s | Concurrency: %d | Rounds: %d\n", a.store.Driver(), concurrency, rounds)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	memBefore := captureMemStats()
	var (
		all        []time.Duration
		violations int
		failures   int64
	)
	started := time.Now()

	for r := 1; r <= rounds; r++ {
		k, err := admin.Generate(ctx, "day", "bench")
		if err != nil {
			return err
		}
		res := raceRedeem(ctx, svc, k.KeyString, concurrency)
		all = append(all, res.latencies...)
		failures += res.failed

		verdict := "ok"
		if res.firstUses != 1 {
			verdict = "VIOLATION"
			violations++
		}
		fmt.Printf("  round %-3d %s  granted=%d failed=%d first_use=%d  %s\n",
			r, k.KeyString, res.granted, res.failed, res.firstUses, verdict)

		if !keep {
			if _, err := admin.Ban(ctx, k.KeyString, "bench"); err != nil {
				a.logger.Warn("could not ban bench key", "key", k.KeyString, "error", err)
			}
		}
	}
	wall := time.Since(started)
	memAfter := captureMemStats()

	fmt.Println()
	fmt.Println("Results")
	fmt.Println("-------")
	fmt.Printf("  Redemptions:    %d\n", len(all))
	fmt.Printf("  Errors:         %d\n", failures)
	fmt.Printf("  Throughput:     %.1f/s\n", float64(len(all))/wall.Seconds())

	if len(all) > 0 {
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		fmt.Printf("  Latency p50:    %s\n", percentile(all, 50))
		fmt.Printf("  Latency p95:    %s\n", percentile(all, 95))
		fmt.Printf("  Latency p99:    %s\n", percentile(all, 99))
		fmt.Printf("  Latency max:    %s\n", all[len(all)-1])
	}

	fmt.Println()
	fmt.Println("Memory")
	fmt.Println("------")
	fmt.Printf("  Heap before:    %s\n", formatBytes(memBefore.HeapAlloc))
	fmt.Printf("  Heap after:     %s\n", formatBytes(memAfter.HeapAlloc))

	if violations > 0 {
		return fmt.Errorf("%d of %d rounds recorded first use more than once or not at all", violations, rounds)
	}
	fmt.Println()
	fmt.Println("Every round recorded first use exactly once.")
	return nil
}
