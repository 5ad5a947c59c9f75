// Command run executes a cross-interpolation convergence experiment
// over a few benchmark functions and an MPS truncation sweep, writing
// CSV results and a rank-vs-error plot into the run directory. Runs
// are idempotent per directory: a done file skips completed work.
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tensor4all/tensornet/network"
	"github.com/tensor4all/tensornet/store"
	"github.com/tensor4all/tensornet/tci"
	"github.com/tensor4all/tensornet/tensor"
)

const (
	fnameConvergence = "convergence.csv"
	fnamePlot        = "convergence.png"
	fnameTruncation  = "truncation.csv"
	fnameMPS         = "mps.db"
	fnameDone        = "done.txt"

	maxRank = 8
)

var (
	runDir = flag.String("d", filepath.Join("runs", "tensornet"), "run directory")
)

type bench struct {
	name string
	dims []int
	f    func([]int) float64
}

func benches() []bench {
	return []bench{
		{
			name: "product",
			dims: []int{4, 4, 4, 4, 4, 4},
			f: func(c []int) float64 {
				p := 1.0
				for _, x := range c {
					p *= 1 + 0.5*float64(x)
				}
				return p
			},
		},
		{
			name: "cosine",
			dims: []int{4, 4, 4, 4, 4, 4},
			f: func(c []int) float64 {
				s := 0.0
				for _, x := range c {
					s += float64(x)
				}
				return math.Cos(0.3 * s)
			},
		},
		{
			name: "coulomb",
			dims: []int{4, 4, 4, 4, 4, 4},
			f: func(c []int) float64 {
				s := 0.0
				for _, x := range c {
					s += float64(x)
				}
				return 1 / (1 + s)
			},
		},
	}
}

type convRow struct {
	bench string
	rank  int
	err   float64
	evals int
}

func convergence() ([]convRow, error) {
	rows := make([]convRow, 0)
	for _, b := range benches() {
		for rank := 1; rank <= maxRank; rank++ {
			tt, rep, err := tci.Build(b.f, b.dims, tci.Options{Tol: 1e-14, MaxRank: rank})
			if err != nil && !errors.Is(err, tci.ErrStagnation) {
				return nil, errors.Wrap(err, b.name)
			}

			measured, err := sampleError(tt, b)
			if err != nil {
				return nil, errors.Wrap(err, b.name)
			}
			rows = append(rows, convRow{bench: b.name, rank: rank, err: measured, evals: rep.Evals})
			log.Printf("%s rank %d: err %.3g, %d evals", b.name, rank, measured, rep.Evals)
		}
	}
	return rows, nil
}

// sampleError estimates the relative error of tt against its source
// function on a fixed random sample of the domain.
func sampleError(tt *tci.TT, b bench) (float64, error) {
	rng := rand.New(rand.NewPCG(71, 72))
	var maxDiff, maxAbs float64
	coords := make([]int, len(b.dims))
	for range 500 {
		for i, d := range b.dims {
			coords[i] = rng.IntN(d)
		}
		want := b.f(coords)
		got, err := tt.Evaluate(coords...)
		if err != nil {
			return 0, err
		}
		maxDiff = math.Max(maxDiff, math.Abs(got-want))
		maxAbs = math.Max(maxAbs, math.Abs(want))
	}
	return maxDiff / maxAbs, nil
}

func writeConvergence(dir string, rows []convRow) error {
	f, err := os.Create(filepath.Join(dir, fnameConvergence))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)
	if err1 := w.Write([]string{"bench", "rank", "err", "evals"}); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for _, r := range rows {
		record := []string{r.bench, strconv.Itoa(r.rank), strconv.FormatFloat(r.err, 'e', 3, 64), strconv.Itoa(r.evals)}
		if err1 := w.Write(record); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func plotConvergence(dir string, rows []convRow) error {
	p := plot.New()
	p.Title.Text = "cross interpolation convergence"
	p.X.Label.Text = "max rank"
	p.Y.Label.Text = "relative error"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	for _, b := range benches() {
		xys := make(plotter.XYs, 0, maxRank)
		for _, r := range rows {
			if r.bench != b.name {
				continue
			}
			// The log axis cannot take an exact zero.
			xys = append(xys, plotter.XY{X: float64(r.rank), Y: math.Max(r.err, 1e-16)})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, "")
		}
		p.Add(line)
		p.Legend.Add(b.name, line)
	}
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(dir, fnamePlot)); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// truncation sweeps a random MPS down through tighter rank budgets and
// records the reported truncation error, then round-trips the state
// through the on-disk container as a consistency check.
func truncation(dir string) error {
	rng := rand.New(rand.NewPCG(73, 74))
	siteDims := []int{2, 2, 2, 2, 2, 2, 2, 2}
	mps, err := network.RandomMPS(rng, tensor.Real, siteDims, 16)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := mps.Orthogonalize(0, network.FormUnitary); err != nil {
		return errors.Wrap(err, "")
	}

	f, err := os.Create(filepath.Join(dir, fnameTruncation))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)
	if err1 := w.Write([]string{"maxdim", "err"}); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for _, maxDim := range []int{8, 4, 2, 1} {
		trunc := mps.Clone()
		res, err1 := trunc.Truncate(network.TruncateOptions{MaxDim: maxDim})
		if err1 != nil {
			if err == nil {
				err = errors.Wrap(err1, "")
			}
			break
		}
		log.Printf("truncate maxdim %d: err %.3g, dims %v", maxDim, res.Err, trunc.BondDims())
		record := []string{strconv.Itoa(maxDim), strconv.FormatFloat(res.Err, 'e', 3, 64)}
		if err1 := w.Write(record); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err != nil {
		return err
	}

	sf, err := store.Create(filepath.Join(dir, fnameMPS))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer sf.Close()
	if err := store.SaveMPS(sf, "mps", mps); err != nil {
		return errors.Wrap(err, "")
	}
	loaded, err := store.LoadMPS(sf, "mps")
	if err != nil {
		return errors.Wrap(err, "")
	}
	want, err := mps.Evaluate(make([]int, len(siteDims))...)
	if err != nil {
		return errors.Wrap(err, "")
	}
	got, err := loaded.Evaluate(make([]int, len(siteDims))...)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("store round trip: %v vs %v", got, want)
	return nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	donePath := filepath.Join(*runDir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		log.Printf("%s already done", *runDir)
		return nil
	}
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	rows, err := convergence()
	if err != nil {
		return err
	}
	if err := writeConvergence(*runDir, rows); err != nil {
		return err
	}
	if err := plotConvergence(*runDir, rows); err != nil {
		return err
	}
	if err := truncation(*runDir); err != nil {
		return err
	}

	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
