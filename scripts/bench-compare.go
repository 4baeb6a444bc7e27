//go:build ignore

// Compares two `go test -bench` output files and flags regressions.
//
// Usage:
//
//	go test -bench . -benchmem ./internal/chunk/ ./internal/store/ > current.txt
//	go run scripts/bench-compare.go -baseline baseline.txt -current current.txt
//
// A benchmark that got more than 20% slower in ns/op fails the run.
// Pair with scripts/generate-test-corpus.go so both sides measured the
// same corpus.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	baselinePath = flag.String("baseline", "", "baseline benchmark output")
	currentPath  = flag.String("current", "", "current benchmark output")
	slowerBy     = flag.Float64("max-slower", 0.20, "fractional slowdown that counts as a regression")
)

// measurement is one parsed benchmark line: name, ns/op, and optional
// allocation columns from -benchmem.
type measurement struct {
	nsPerOp     float64
	bytesPerOp  int64
	allocsPerOp int64
}

// parseBench reads go test -bench output into name keyed measurements.
// Lines that are not benchmark results are skipped.
func parseBench(path string) (map[string]measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]measurement)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		ns, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || fields[3] != "ns/op" {
			continue
		}
		m := measurement{nsPerOp: ns}
		for i := 4; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseInt(fields[i], 10, 64)
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "B/op":
				m.bytesPerOp = v
			case "allocs/op":
				m.allocsPerOp = v
			}
		}
		// Strip the GOMAXPROCS suffix so -cpu runs still line up.
		name := fields[0]
		if i := strings.LastIndex(name, "-"); i > 0 {
			name = name[:i]
		}
		out[name] = m
	}
	return out, sc.Err()
}

func main() {
	flag.Parse()
	if *baselinePath == "" || *currentPath == "" {
		fmt.Fprintln(os.Stderr, "both -baseline and -current are required")
		flag.Usage()
		os.Exit(2)
	}

	baseline, err := parseBench(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read baseline: %v\n", err)
		os.Exit(1)
	}
	current, err := parseBench(*currentPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read current: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	regressed := 0
	for _, name := range names {
		cur := current[name]
		base, ok := baseline[name]
		if !ok {
			fmt.Printf("%-60s %12.0f ns/op  (no baseline)\n", name, cur.nsPerOp)
			continue
		}
		delta := (cur.nsPerOp - base.nsPerOp) / base.nsPerOp
		mark := ""
		if delta > *slowerBy {
			mark = "  REGRESSED"
			regressed++
		}
		fmt.Printf("%-60s %12.0f ns/op  %+6.1f%%%s\n", name, cur.nsPerOp, delta*100, mark)
		if cur.allocsPerOp > base.allocsPerOp && base.allocsPerOp > 0 {
			fmt.Printf("%-60s %12d allocs/op (was %d)\n", "", cur.allocsPerOp, base.allocsPerOp)
		}
	}
	for name := range baseline {
		if _, ok := current[name]; !ok {
			fmt.Printf("%-60s missing from current run\n", name)
		}
	}

	if regressed > 0 {
		fmt.Fprintf(os.Stderr, "%d benchmark(s) slower than baseline by more than %.0f%%\n",
			regressed, *slowerBy*100)
		os.Exit(1)
	}
}
