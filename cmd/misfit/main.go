// Command misfit ranks candidate source mechanisms by their waveform misfit
// against a set of observed stations.
//
// The fixture file carries the observed records and, for each candidate,
// synthetics produced by an external Green's-function tool. Results can be
// stored in sqlite for later inspection.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/banshee-data/waveform.misfit/internal/config"
	"github.com/banshee-data/waveform.misfit/internal/db"
	"github.com/banshee-data/waveform.misfit/internal/misfit"
	"github.com/banshee-data/waveform.misfit/internal/version"
	"github.com/banshee-data/waveform.misfit/internal/waveform"
)

var (
	configPath  = flag.String("config", "", "Path to misfit config JSON (defaults when empty)")
	fixturePath = flag.String("fixture", "", "Path to fixture JSON with observations and candidate synthetics")
	dbPath      = flag.String("db", "", "Optional sqlite database for storing results")
	runLabel    = flag.String("label", "", "Label stored with the run")
	top         = flag.Int("top", 10, "Number of best candidates to print (0 prints all)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// ranked is the outcome for one candidate.
type ranked struct {
	Label  string
	Params json.RawMessage
	Result *misfit.Result
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("misfit %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *fixturePath == "" {
		log.Fatal("-fixture is required")
	}

	cfg := config.DefaultMisfitConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadMisfitConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	fixture, err := waveform.LoadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("Failed to load fixture: %v", err)
	}

	start := time.Now()
	results, err := evaluate(cfg.Misfit(), fixture)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	log.Printf("Evaluated %d candidates against %d stations in %v",
		len(results), len(fixture.Stations), time.Since(start).Round(time.Millisecond))

	printRanking(os.Stdout, results, *top)

	if *dbPath != "" {
		runID, err := store(*dbPath, *runLabel, cfg, results)
		if err != nil {
			log.Fatalf("Failed to store results: %v", err)
		}
		log.Printf("Stored run %s in %s", runID, *dbPath)
	}
}

// evaluate scores every candidate in fixture order and returns them sorted
// best first. Ties keep fixture order.
func evaluate(cfg misfit.Config, fixture *waveform.Fixture) ([]ranked, error) {
	m, err := misfit.New(cfg)
	if err != nil {
		return nil, err
	}
	gen := misfit.NewTableGenerator(fixture.Candidates)

	results := make([]ranked, 0, len(fixture.Candidates))
	for _, c := range fixture.Candidates {
		res, err := m.Evaluate(fixture.Stations, gen, c.Label)
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.Label, err)
		}
		results = append(results, ranked{Label: c.Label, Params: c.Params, Result: res})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Result.Misfit < results[j].Result.Misfit
	})
	return results, nil
}

func printRanking(w io.Writer, results []ranked, n int) {
	if n <= 0 || n > len(results) {
		n = len(results)
	}
	width := len("CANDIDATE")
	for _, r := range results[:n] {
		width = max(width, len(r.Label))
	}
	fmt.Fprintf(w, "%-4s  %-*s  %-12s  %s\n", "RANK", width, "CANDIDATE", "MISFIT", "SHIFTS (s)")
	for i, r := range results[:n] {
		fmt.Fprintf(w, "%-4d  %-*s  %-12.6g  %s\n", i+1, width, r.Label, r.Result.Misfit, shiftSummary(r.Result.Alignments))
	}
}

// shiftSummary lists the time shift of each station/group once.
func shiftSummary(alignments []misfit.Alignment) string {
	seen := make(map[string]bool)
	out := ""
	for _, a := range alignments {
		key := a.Station + "/" + a.TimeShiftGroup
		if seen[key] {
			continue
		}
		seen[key] = true
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%+.3f", key, a.TimeShift)
	}
	return out
}

func store(path, label string, cfg *config.MisfitConfig, results []ranked) (string, error) {
	database, err := db.Open(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	runs := db.NewRunStore(database)
	run := &db.Run{Label: label, ConfigJSON: cfgJSON}
	if err := runs.InsertRun(run); err != nil {
		return "", err
	}
	for _, r := range results {
		if err := runs.InsertEvaluation(&db.Evaluation{
			RunID:      run.RunID,
			Mechanism:  r.Label,
			ParamsJSON: r.Params,
			Misfit:     r.Result.Misfit,
			Alignments: r.Result.Alignments,
		}); err != nil {
			return "", err
		}
	}
	return run.RunID, nil
}
