package main

// Micro-benchmark for the storage engine: sequential fill, flush, then
// random point reads.

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/tidekv/tidekv/fs"
	"github.com/tidekv/tidekv/lsm"
)

type generator struct {
	*rand.Rand
	valueSize int
}

func newGenerator(valueSize int) *generator {
	return &generator{Rand: rand.New(rand.NewSource(0)), valueSize: valueSize}
}

func (g *generator) Key(i int) string {
	return fmt.Sprintf("key%012d", i)
}

func (g *generator) Value() string {
	b := make([]byte, g.valueSize)
	for i := range b {
		b[i] = byte('a' + g.Intn(26))
	}
	return string(b)
}

type stats struct {
	ops   int
	bytes int
	start time.Time
}

func newStats() *stats {
	return &stats{start: time.Now()}
}

func (s *stats) finishOp(bytes int) {
	s.ops++
	s.bytes += bytes
}

func (s *stats) report(name string) {
	micros := time.Since(s.start).Seconds() * 1e6
	fmt.Printf("%-8s %8d ops %8.3f micros/op %8.1f MB/s\n",
		name, s.ops,
		micros/float64(s.ops),
		float64(s.bytes)/(1024*1024)/(micros/1e6))
}

func main() {
	dir := flag.String("dir", "bench.db", "data directory")
	n := flag.Int("n", 100000, "number of keys")
	valueSize := flag.Int("value-size", 100, "value size in bytes")
	flag.Parse()

	fsys, err := fs.DirFs(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tidekv-bench:", err)
		os.Exit(1)
	}
	engine, err := lsm.Open(fsys, lsm.DefaultOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, "tidekv-bench:", err)
		os.Exit(1)
	}
	defer engine.Close()

	g := newGenerator(*valueSize)

	w := newStats()
	for i := 0; i < *n; i++ {
		k := g.Key(i)
		if err := engine.Put(k, g.Value()); err != nil {
			fmt.Fprintln(os.Stderr, "put:", err)
			os.Exit(1)
		}
		w.finishOp(len(k) + *valueSize)
	}
	if err := engine.FlushAll(); err != nil {
		fmt.Fprintln(os.Stderr, "flush:", err)
		os.Exit(1)
	}
	w.report("fill")

	r := newStats()
	for i := 0; i < *n; i++ {
		k := g.Key(g.Intn(*n))
		v, ok, err := engine.Get(k)
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "missing key %s\n", k)
			os.Exit(1)
		}
		r.finishOp(len(k) + len(v))
	}
	r.report("read")

	st := engine.Stats()
	fmt.Printf("levels: %+v max_level=%d\n", st.Levels, st.MaxLevel)
}
