package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/davecheney/profile"
	flag "github.com/docker/docker/pkg/mflag"
	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/kgregersen/reweighter/internal/config"
	"github.com/kgregersen/reweighter/internal/forest"
	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/logx"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
	"github.com/kgregersen/reweighter/internal/weightsfile"
)

var (
	configFile = flag.String([]string{"c", "-config"}, "", "YAML run configuration")
	sourceFile = flag.String([]string{"s", "-source"}, "", "source sample (csv, or duckdb when --source-query is set)")
	targetFile = flag.String([]string{"t", "-target"}, "", "target sample (csv, or duckdb when --target-query is set)")
	sourceQry  = flag.String([]string{"-source-query"}, "", "SQL query selecting the source sample from a duckdb file")
	targetQry  = flag.String([]string{"-target-query"}, "", "SQL query selecting the target sample from a duckdb file")

	weightsOut = flag.String([]string{"-weights-out"}, "weights.txt", "file to write the fitted weights to")
	weightsIn  = flag.String([]string{"-weights-in"}, "", "weights file to apply instead of fitting a new one")
	applyOut   = flag.String([]string{"-apply-out"}, "", "file to write per-row applied weights to (apply mode)")
	impOut     = flag.String([]string{"-var-importance"}, "", "file to write variable importance to")

	nWorkers    = flag.Int([]string{"-workers"}, 1, "number of workers for fitting RF/ET trees")
	interactive = flag.Bool([]string{"-interactive"}, false, "open a REPL to inspect a fitted or loaded ensemble")
	runProfile  = flag.Bool([]string{"-profile"}, false, "cpu profile")
	logLevel    = flag.String([]string{"-log-level"}, "INFO", "log level: DEBUG, VERBOSE, INFO, WARNING, ERROR (a PrintLevel key in the config overrides it)")
)

func main() {
	flag.Parse()
	log := logx.Default("reweighter")

	if lvl, ok := logx.ParseLevel(*logLevel); ok {
		log.SetLevel(lvl)
	}

	runID := uuid.New().String()
	log.Infof("run %s starting", runID)

	if *runProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}
	if *nWorkers > 1 {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	if *sourceFile == "" {
		fmt.Fprintf(os.Stderr, "Usage of reweighter:\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(log, runID); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(log *logx.Logger, runID string) error {
	cfg := config.New()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if lvl, ok := logx.ParseLevel(cfg.GetStringIf("PrintLevel", "")); ok {
		log.SetLevel(lvl)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	sourceCur, err := openCursor(*sourceFile, *sourceQry)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}

	if *weightsIn != "" {
		return applyWeights(log, reg, sourceCur)
	}

	targetCur, err := openCursor(*targetFile, *targetQry)
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}

	return fit(log, cfg, reg, sourceCur, targetCur, runID)
}

func buildRegistry(cfg *config.Map) (*variable.Registry, error) {
	names, err := cfg.GetString("Variables")
	if err != nil {
		return nil, fmt.Errorf("config: Variables is required, a comma-separated list of columns: %w", err)
	}
	reg := variable.NewRegistry()
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := reg.Register(name); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func openCursor(path, query string) (rowsource.Cursor, error) {
	if path == "" {
		return nil, fmt.Errorf("no file given")
	}
	if query != "" {
		return rowsource.OpenDuckDBQuery(path, query)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".duckdb", ".db":
		return nil, fmt.Errorf("%s: a duckdb file requires --source-query/--target-query", path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return rowsource.ParseCSV(f)
	}
}

func weightColumn(cfg *config.Map, key string, cur rowsource.Cursor) []float64 {
	n := cur.RowCount()
	w := make([]float64, n)
	col := cfg.GetStringIf(key, "")
	for i := range w {
		w[i] = 1
	}
	if col == "" {
		return w
	}
	for i := 0; i < n; i++ {
		if err := cur.GetRow(i); err != nil {
			continue
		}
		if v, err := cur.Float(col); err == nil {
			w[i] = v
		}
	}
	return w
}

func fit(log *logx.Logger, cfg *config.Map, reg *variable.Registry, sourceCur, targetCur rowsource.Cursor, runID string) error {
	method, err := cfg.Method()
	if err != nil {
		return err
	}

	defs, err := histogram.DiscoverRanges(reg, sourceCur, targetCur)
	if err != nil {
		return err
	}

	sourceWeights := weightColumn(cfg, "SourceWeightColumn", sourceCur)
	targetWeights := weightColumn(cfg, "TargetWeightColumn", targetCur)

	numForests, err := cfg.GetInt("NumForests")
	if err != nil {
		numForests = 1
	}
	numTrees, err := cfg.GetInt("NumTrees")
	if err != nil {
		return err
	}
	maxLayers, err := cfg.GetInt("MaxLayers")
	if err != nil {
		return err
	}
	minEventsNode, err := cfg.GetInt("MinEventsNode")
	if err != nil {
		return err
	}
	learningRate, err := cfg.GetFloat("LearningRate")
	if err != nil {
		learningRate = 1.0
	}
	samplingFraction, err := cfg.GetFloat("SamplingFraction")
	if err != nil {
		samplingFraction = 1.0
	}
	featureSamplingFraction, err := cfg.GetFloat("FeatureSamplingFraction")
	if err != nil {
		featureSamplingFraction = 1.0
	}
	seed, err := cfg.GetInt("SamplingFractionSeed")
	if err != nil {
		seed = 1
	}

	buildCfg := forest.BuildConfig{
		Method:                  method,
		NumForests:              numForests,
		NumTrees:                numTrees,
		MaxLayers:               maxLayers,
		MinEventsNode:           minEventsNode,
		LearningRate:            learningRate,
		SamplingFraction:        samplingFraction,
		FeatureSamplingFraction: featureSamplingFraction,
		Bagging:                 cfg.GetBool("Bagging"),
		Rng:                     rand.New(rand.NewSource(int64(seed))),
	}

	printer := message.NewPrinter(language.English)
	log.Infof("%s", printer.Sprintf("fitting %s ensemble: %d forest(s) x %d tree(s)", method, buildCfg.NumForests, buildCfg.NumTrees))

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)
	buildCfg.Progress = func(treeIdx, total int) {
		if treeIdx == total || limiter.Allow() {
			log.Verbosef("%s", printer.Sprintf("tree %d/%d", treeIdx, total))
		}
	}

	var ens *forest.Ensemble
	if *nWorkers > 1 && (method == config.MethodRF || method == config.MethodET) {
		ens, err = forest.FitParallel(buildCfg, *nWorkers, defs, sourceCur, targetCur, sourceWeights, targetWeights)
	} else {
		ens, err = forest.Fit(buildCfg, defs, sourceCur, targetCur, sourceWeights, targetWeights)
	}
	if err != nil {
		return fmt.Errorf("fitting: %w", err)
	}

	out, err := os.Create(*weightsOut)
	if err != nil {
		return err
	}
	defer out.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05") + " run " + runID
	if err := weightsfile.Write(out, ens, reg, timestamp, cfg.Lines()); err != nil {
		return err
	}
	log.Infof("wrote weights to %s", *weightsOut)

	if err := ens.Report(os.Stderr); err != nil {
		return err
	}

	if *impOut != "" {
		if err := writeVarImp(*impOut, ens); err != nil {
			return err
		}
	}

	if *interactive {
		return repl(log, reg, ens)
	}
	return nil
}

func applyWeights(log *logx.Logger, reg *variable.Registry, sourceCur rowsource.Cursor) error {
	f, err := os.Open(*weightsIn)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := weightsfile.Read(f, reg)
	if err != nil {
		return err
	}
	log.Infof("loaded %s ensemble fit at %s", res.Method, res.Timestamp)

	out := os.Stdout
	if *applyOut != "" {
		created, err := os.Create(*applyOut)
		if err != nil {
			return err
		}
		defer created.Close()
		out = created
	}

	w := bufio.NewWriter(out)
	defer w.Flush()
	fmt.Fprintln(w, "weight,error")

	n := sourceCur.RowCount()
	for i := 0; i < n; i++ {
		if err := sourceCur.GetRow(i); err != nil {
			return err
		}
		result, err := res.Ensemble.Weight(sourceCur)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%v,%v\n", result.Weight, result.Error)
	}

	if *interactive {
		return repl(log, reg, res.Ensemble)
	}
	return nil
}

func writeVarImp(path string, ens *forest.Ensemble) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()
	for name, gain := range ens.VarImp() {
		fmt.Fprintf(w, "%s=%v\n", name, gain)
	}
	return nil
}

// repl opens an interactive shell over a fitted or loaded ensemble. It
// understands two commands: "varimp" prints variable importance, and
// "quit"/"exit" leaves. It does not evaluate weights for typed-in values.
func repl(log *logx.Logger, reg *variable.Registry, ens *forest.Ensemble) error {
	rl, err := readline.New("reweighter> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("interactive mode: varimp | quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		switch strings.TrimSpace(line) {
		case "quit", "exit":
			return nil
		case "varimp":
			for name, gain := range ens.VarImp() {
				fmt.Printf("%s\t%s\n", name, strconv.FormatFloat(gain, 'f', 4, 64))
			}
		case "":
		default:
			log.Warningf("unrecognized command %q", line)
		}
	}
}
