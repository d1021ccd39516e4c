// cmd/allocbench drives all three allocator engines under concurrent load
// and reports their throughput, exhaustion rate, and latency percentiles.
// GOMAXPROCS sizing comes from go.uber.org/automaxprocs (container-aware
// CPU quota detection) and default capacity sizing comes from
// github.com/pbnjay/memory (total system RAM).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/pbnjay/memory"
	_ "go.uber.org/automaxprocs"

	"github.com/minio/memengine/arena"
	"github.com/minio/memengine/internal/metrics"
	"github.com/minio/memengine/internal/telemetry"
	"github.com/minio/memengine/pool"
	"github.com/minio/memengine/slab"
)

const Version = "1.0.0"

func main() {
	var (
		blockSize       = flag.Uint64("block-size", 64, "bytes per block/allocation")
		totalBlocks     = flag.Uint64("total-blocks", 1_000_000, "total blocks in the slab/pool backing store")
		blocksPerWorker = flag.Uint64("blocks-per-worker", 64, "pool worker cache size, in blocks")
		workers         = flag.Int("workers", 0, "concurrent goroutines per engine (0 = GOMAXPROCS)")
		iterations      = flag.Int("iterations", 200_000, "alloc/free iterations per worker")
		arenaSize       = flag.Uint64("arena-size", 0, "arena capacity in bytes (0 = auto-sized from system RAM)")
		metricsAddr     = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address after the run (e.g. :9100)")
		jaegerEndpoint  = flag.String("jaeger-endpoint", os.Getenv("JAEGER_ENDPOINT"), "Jaeger collector endpoint for span export")
	)
	flag.Parse()

	if *workers <= 0 {
		*workers = runtime.GOMAXPROCS(0)
	}

	fmt.Printf("memengine allocbench v%s\n", Version)
	fmt.Println("============================")
	fmt.Printf("CPUs: %d, GOMAXPROCS: %d (automaxprocs-aware)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	fmt.Printf("System RAM: %d MiB\n", memory.TotalMemory()/(1024*1024))

	if *jaegerEndpoint != "" {
		if err := telemetry.Init(*jaegerEndpoint); err != nil {
			log.Printf("warning: tracing init failed: %v", err)
		} else {
			// Wire each engine's Observer seam to a real tracer only once
			// tracing is actually configured: an unset Observer costs
			// nothing on Borrow/New/Destroy, and a host that never asked
			// for tracing shouldn't pay even a no-op span.
			slab.Observer = telemetry.Hook("slab")
			arena.Observer = telemetry.Hook("arena")
			pool.Observer = telemetry.Hook("pool")
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx); err != nil {
					log.Printf("warning: tracing shutdown failed: %v", err)
				}
			}()
		}
	}

	if *arenaSize == 0 {
		// Size the arena to a small, conservative slice of system RAM so a
		// default run never threatens the host running it.
		*arenaSize = memory.TotalMemory() / 256
		if *arenaSize == 0 {
			*arenaSize = 1 << 20
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	var slabCollector, arenaCollector, poolCollector atomic.Pointer[metrics.Collector]
	go func() {
		slabCollector.Store(runSlabBench(uintptr(*blockSize), uintptr(*totalBlocks), *workers, *iterations))
		arenaCollector.Store(runArenaBench(uintptr(*arenaSize), uintptr(*blockSize), *workers, *iterations))
		poolCollector.Store(runPoolBench(uintptr(*blockSize), uintptr(*blocksPerWorker), uintptr(*totalBlocks), *workers, *iterations))
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("\nbenchmark run complete")
	case sig := <-sigCh:
		fmt.Printf("\nreceived %v, stopping early\n", sig)
	}

	if *metricsAddr != "" {
		// Whichever bench functions finished before done/sigCh fired have
		// published their collector; any that hadn't started yet stay nil
		// and serveMetrics skips them.
		serveMetrics(*metricsAddr, slabCollector.Load(), arenaCollector.Load(), poolCollector.Load())
	}
}

func runSlabBench(blockSize, totalBlocks uintptr, workers, iterations int) *metrics.Collector {
	fmt.Printf("\n-- slab: %d workers x %d iterations, %d blocks of %d bytes --\n", workers, iterations, totalBlocks, blockSize)

	s, err := slab.New(blockSize, totalBlocks)
	if err != nil {
		log.Printf("slab.New: %v", err)
		return nil
	}
	defer s.Destroy()

	collector := metrics.NewCollector("slab:allocbench")
	detector := metrics.NewAnomalyDetector(25)

	var wg sync.WaitGroup
	wg.Add(workers)
	start := time.Now()
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				t0 := time.Now()
				p := s.Alloc()
				collector.Record(metrics.OperationResult{Op: "alloc", Duration: time.Since(t0), Success: p != nil})
				if p == nil {
					continue
				}
				err := s.Free(p)
				collector.Record(metrics.OperationResult{Op: "free", Success: err == nil})
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	printReport("slab", collector, detector, elapsed)
	return collector
}

func runArenaBench(capacity, allocSize uintptr, workers, iterations int) *metrics.Collector {
	fmt.Printf("\n-- arena: %d workers x %d iterations, %d byte capacity --\n", workers, iterations, capacity)

	a, err := arena.New(capacity)
	if err != nil {
		log.Printf("arena.New: %v", err)
		return nil
	}
	defer a.Destroy()

	collector := metrics.NewCollector("arena:allocbench")
	detector := metrics.NewAnomalyDetector(25)

	var wg sync.WaitGroup
	wg.Add(workers)
	start := time.Now()
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				t0 := time.Now()
				p := a.Alloc(allocSize)
				collector.Record(metrics.OperationResult{Op: "alloc", Duration: time.Since(t0), Success: p != nil})
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	used, capacity := a.Stats()
	exhaustion := collector.ExhaustionRate()
	detector.Update("exhaustion_rate", exhaustion)
	fmt.Printf("arena bump-allocated %d of %d bytes (%d remaining)\n", used, capacity, capacity-used)
	printReport("arena", collector, detector, elapsed)

	a.Reset()
	fmt.Println("arena reset for reuse")
	return collector
}

func runPoolBench(blockSize, blocksPerWorker, totalBlocks uintptr, workers, iterations int) *metrics.Collector {
	fmt.Printf("\n-- pool: %d workers x %d iterations, %d blocks cached per worker --\n", workers, iterations, blocksPerWorker)

	p, err := pool.New(blockSize, blocksPerWorker, totalBlocks)
	if err != nil {
		log.Printf("pool.New: %v", err)
		return nil
	}
	defer p.Destroy()

	collector := metrics.NewCollector("pool:allocbench")
	detector := metrics.NewAnomalyDetector(25)

	var wg sync.WaitGroup
	wg.Add(workers)
	start := time.Now()
	for i := 0; i < workers; i++ {
		go func(seed int) {
			defer wg.Done()
			w := p.Borrow()
			defer w.Release()

			rng := rand.New(rand.NewSource(int64(seed) + 1))
			var live []unsafe.Pointer
			for j := 0; j < iterations; j++ {
				if len(live) == 0 || rng.Intn(2) == 0 {
					t0 := time.Now()
					ptr := w.Alloc()
					success := ptr != nil
					collector.Record(metrics.OperationResult{Op: "alloc", Duration: time.Since(t0), Success: success})
					if success {
						live = append(live, ptr)
					}
					continue
				}
				ptr := live[len(live)-1]
				live = live[:len(live)-1]
				err := w.Free(ptr)
				collector.Record(metrics.OperationResult{Op: "free", Success: err == nil})
			}
			for _, ptr := range live {
				_ = w.Free(ptr)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	printReport("pool", collector, detector, elapsed)
	return collector
}

func printReport(engine string, c *metrics.Collector, d *metrics.AnomalyDetector, elapsed time.Duration) {
	p := c.Percentiles()
	exhaustion := c.ExhaustionRate()
	d.Update("exhaustion_rate", exhaustion)
	anomalous, dev := d.Check("exhaustion_rate", exhaustion)

	fmt.Printf("%s: elapsed=%v exhaustion=%.3f%% p50=%v p99=%v\n", engine, elapsed, exhaustion, p.P50, p.P99)
	if anomalous {
		fmt.Printf("%s: exhaustion rate deviates %.1f%% from baseline\n", engine, dev)
	}
	fmt.Print(c.ExportPrometheus())
}

// serveMetrics exports the Prometheus text for every collector that
// actually ran (nil entries, e.g. a bench stage the user Ctrl-C'd past
// before it started, are skipped) on every scrape of /metrics.
func serveMetrics(addr string, collectors ...*metrics.Collector) {
	fmt.Printf("\nserving /metrics on %s (Ctrl-C to exit)\n", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintln(w, "# memengine allocbench: counters are from the last completed run")
		for _, c := range collectors {
			if c == nil {
				continue
			}
			fmt.Fprint(w, c.ExportPrometheus())
		}
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server error: %v", err)
	}
}
