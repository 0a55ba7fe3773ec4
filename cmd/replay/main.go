package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	runlog "cyberfarm.ai/internal/persistence/log"
	"cyberfarm.ai/internal/replay"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

func main() {
	var (
		runsDir    = flag.String("runs", "./data/runs", "run log dir containing runs-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		runID      = flag.String("run", "", "verify only this run id (optional)")
		verbose    = flag.Bool("v", false, "print every verified run")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	runs, err := runlog.ReadRuns(*runsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read runs:", err)
		os.Exit(1)
	}

	var checked, partial, mismatched int
	for _, run := range runs {
		if *runID != "" && run.ID() != *runID {
			continue
		}
		checked++
		res, err := replay.Verify(run, tune, cats)
		if err != nil {
			var mm *replay.MismatchError
			if !errors.As(err, &mm) {
				fmt.Fprintln(os.Stderr, "replay:", err)
				os.Exit(1)
			}
			mismatched++
			fmt.Printf("MISMATCH %v\n", err)
			continue
		}
		if res.Partial != "" {
			partial++
		}
		if *verbose {
			line := fmt.Sprintf("ok run=%s outcome=%s events=%d", res.RunID, res.Outcome, res.Events)
			if res.Partial != "" {
				line += " partial=" + res.Partial
			}
			fmt.Println(line)
		}
	}

	if *runID != "" && checked == 0 {
		fmt.Fprintf(os.Stderr, "run %s not found in %s\n", *runID, *runsDir)
		os.Exit(1)
	}
	fmt.Printf("replay checked=%d partial=%d mismatched=%d\n", checked, partial, mismatched)
	if mismatched > 0 {
		os.Exit(1)
	}
}
