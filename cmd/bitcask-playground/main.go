// Command bitcask-playground drives a Bitcask store with a large volume
// of randomly generated operations, optionally checkpointing them to CSV
// so a run can be replayed later, and reports per-operation-kind timing
// once it finishes. It exists to exercise the store the way a human
// operator stress-testing it by hand would: a big, mixed, reproducible
// workload rather than a handful of unit assertions.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aetherkv/bitcask"
)

// opKind mirrors the six-way weighted distribution from the reference
// scenario: hit-get, miss-get, insert, update, hit-del, miss-del.
type opKind int

const (
	opHitGet opKind = iota
	opMissGet
	opInsert
	opUpdate
	opHitDel
	opMissDel
)

func (k opKind) String() string {
	switch k {
	case opHitGet:
		return "hit-get"
	case opMissGet:
		return "miss-get"
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opHitDel:
		return "hit-del"
	case opMissDel:
		return "miss-del"
	default:
		return "unknown"
	}
}

// weightedKinds flattens the ratio (2 : 0.5 : 4 : 1 : 0.5 : 0.1), scaled
// by 10 to stay in whole numbers, into a slice to sample uniformly from.
var weightedKinds = buildWeightedKinds()

func buildWeightedKinds() []opKind {
	weights := map[opKind]int{
		opHitGet:  20,
		opMissGet: 5,
		opInsert:  40,
		opUpdate:  10,
		opHitDel:  5,
		opMissDel: 1,
	}
	var out []opKind
	for k, w := range weights {
		for i := 0; i < w; i++ {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// operation is one entry of a generated or replayed workload.
type operation struct {
	kind  opKind
	key   string
	value string
}

// counter accumulates call count and total duration for one operation
// kind, reported in a human-readable summary at the end of a run.
type counter struct {
	mu    sync.Mutex
	count int64
	total time.Duration
}

func (c *counter) record(d time.Duration) {
	c.mu.Lock()
	c.count++
	c.total += d
	c.mu.Unlock()
}

func (c *counter) report(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		fmt.Printf("%-10s %8s calls\n", label, "0")
		return
	}
	avg := c.total / time.Duration(c.count)
	fmt.Printf("%-10s %8s calls, total %-12s avg %s\n",
		label, humanize.Comma(c.count), c.total, avg)
}

func main() {
	var (
		dir         = flag.String("dir", "/tmp/bitcask-playground", "store directory")
		count       = flag.Int("count", 1_000_000, "number of random operations to generate/replay")
		seed        = flag.Int64("seed", 1, "PRNG seed for reproducible generation")
		opsFile     = flag.String("ops-file", "", "CSV file to write generated operations to (or read from, with -replay)")
		replay      = flag.Bool("replay", false, "replay operations from -ops-file instead of generating fresh ones")
		doMerge     = flag.Bool("merge", false, "run Merge() after applying the workload")
		workers     = flag.Int("workers", 0, "number of concurrent reader goroutines to fan out after the workload (0 disables)")
		maxFileSize = flag.Uint64("max-file-size", bitcask.DefaultMaxFileSize, "store max_file_size in bytes")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	store, err := bitcask.Open(*dir, bitcask.WithMaxFileSize(*maxFileSize))
	if err != nil {
		slog.Error("playground: open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var ops []operation
	reference := make(map[string]string)

	if *replay {
		ops, err = loadOperations(*opsFile)
		if err != nil {
			slog.Error("playground: replay load failed", "error", err)
			os.Exit(1)
		}
	} else {
		ops = generateOperations(*seed, *count, reference)
		if *opsFile != "" {
			if err := writeOperations(*opsFile, ops); err != nil {
				slog.Error("playground: failed to write ops file", "error", err)
				os.Exit(1)
			}
		}
	}

	counters := map[opKind]*counter{
		opHitGet:  {},
		opMissGet: {},
		opInsert:  {},
		opUpdate:  {},
		opHitDel:  {},
		opMissDel: {},
	}

	start := time.Now()
	for _, op := range ops {
		applyOperation(store, op, counters[op.kind])
	}
	slog.Info("playground: workload applied", "ops", len(ops), "elapsed", time.Since(start))

	for _, k := range []opKind{opHitGet, opMissGet, opInsert, opUpdate, opHitDel, opMissDel} {
		counters[k].report(k.String())
	}

	if *doMerge {
		mergeStart := time.Now()
		if err := store.Merge(); err != nil {
			slog.Error("playground: merge failed", "error", err)
			os.Exit(1)
		}
		slog.Info("playground: merge complete", "elapsed", time.Since(mergeStart))
	}

	if *workers > 0 {
		runConcurrentReaders(store, *workers)
	}

	slog.Info("playground: done", "keys", keyCount(store))
}

// generateOperations produces count random operations against an
// initially empty store, keeping reference in sync so the caller can
// verify the result, and sampling keys so that hit-get/update/hit-del
// only ever target keys already known to exist.
func generateOperations(seed int64, count int, reference map[string]string) []operation {
	rng := rand.New(rand.NewSource(seed))
	var keys []string
	ops := make([]operation, 0, count)

	randomKey := func() string {
		return "key-" + strconv.FormatInt(rng.Int63(), 36)
	}
	randomValue := func() string {
		return "value-" + strconv.FormatInt(rng.Int63(), 36)
	}
	pickExisting := func() (string, bool) {
		if len(keys) == 0 {
			return "", false
		}
		return keys[rng.Intn(len(keys))], true
	}

	for i := 0; i < count; i++ {
		kind := weightedKinds[rng.Intn(len(weightedKinds))]

		switch kind {
		case opHitGet:
			key, ok := pickExisting()
			if !ok {
				kind = opMissGet
				ops = append(ops, operation{kind: kind, key: randomKey()})
				continue
			}
			ops = append(ops, operation{kind: kind, key: key, value: reference[key]})
		case opMissGet:
			ops = append(ops, operation{kind: kind, key: randomKey()})
		case opInsert:
			key := randomKey()
			value := randomValue()
			reference[key] = value
			keys = append(keys, key)
			ops = append(ops, operation{kind: kind, key: key, value: value})
		case opUpdate:
			key, ok := pickExisting()
			if !ok {
				key = randomKey()
				keys = append(keys, key)
			}
			value := randomValue()
			reference[key] = value
			ops = append(ops, operation{kind: kind, key: key, value: value})
		case opHitDel:
			if len(keys) == 0 {
				ops = append(ops, operation{kind: opMissDel, key: randomKey()})
				continue
			}
			idx := rng.Intn(len(keys))
			key := keys[idx]
			keys[idx] = keys[len(keys)-1]
			keys = keys[:len(keys)-1]
			delete(reference, key)
			ops = append(ops, operation{kind: kind, key: key})
		case opMissDel:
			ops = append(ops, operation{kind: kind, key: randomKey()})
		}
	}

	return ops
}

func applyOperation(store *bitcask.Store, op operation, c *counter) {
	start := time.Now()
	switch op.kind {
	case opHitGet, opMissGet:
		_, _, _ = store.Get([]byte(op.key))
	case opInsert, opUpdate:
		_, _ = store.Put([]byte(op.key), []byte(op.value))
	case opHitDel, opMissDel:
		_, _ = store.Del([]byte(op.key))
	}
	c.record(time.Since(start))
}

func writeOperations(path string, ops []operation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	for _, op := range ops {
		if err := w.Write([]string{strconv.Itoa(int(op.kind)), op.key, op.value}); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return w.Error()
}

func loadOperations(path string) ([]operation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = 3

	var ops []operation
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		kind, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		ops = append(ops, operation{kind: opKind(kind), key: record[1], value: record[2]})
	}
	return ops, nil
}

// runConcurrentReaders launches n goroutines, each performing a Get on
// every live key in a privately shuffled order, mirroring the reference
// concurrent-reader scenario.
func runConcurrentReaders(store *bitcask.Store, n int) {
	var keys []string
	store.Traverse(func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	})

	var wg sync.WaitGroup
	var misses atomic64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 1))
			order := make([]int, len(keys))
			for i := range order {
				order[i] = i
			}
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

			for _, idx := range order {
				_, ok, err := store.Get([]byte(keys[idx]))
				if err != nil || !ok {
					misses.add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	slog.Info("playground: concurrent reader sweep complete", "workers", n, "keys", len(keys), "misses", misses.load())
}

func keyCount(store *bitcask.Store) int {
	n := 0
	store.Traverse(func(_, _ []byte) bool {
		n++
		return true
	})
	return n
}

// atomic64 is a tiny mutex-guarded counter; the playground's use is far
// too low-frequency to warrant sync/atomic plumbing across goroutines.
type atomic64 struct {
	mu sync.Mutex
	n  int64
}

func (a *atomic64) add(d int64) {
	a.mu.Lock()
	a.n += d
	a.mu.Unlock()
}

func (a *atomic64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
