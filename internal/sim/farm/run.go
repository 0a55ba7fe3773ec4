package farm

type RunResult struct {
	Cost int     `json:"cost"`
	Gain int     `json:"gain"`
	ROI  float64 `json:"roi"`
}

// RunSummary is the run-completion payload.
type RunSummary struct {
	RunResult
	BestROI   float64 `json:"best_roi"`
	NewRecord bool    `json:"new_record"`
}

// BeginRun resets elapsed time and the run's cost/gain counters. Gold and
// the best ROI carry over between runs.
func (f *Farm) BeginRun() {
	f.time = 0
	f.runCost = 0
	f.runGain = 0
}

// RunResult computes ROI for the current run; zero unless gain > cost > 0.
func (f *Farm) RunResult() RunResult {
	r := RunResult{Cost: f.runCost, Gain: f.runGain}
	if r.Gain > r.Cost && r.Cost > 0 {
		r.ROI = float64(r.Gain-r.Cost) / float64(r.Cost)
	}
	return r
}

// FinishRun compares the run's ROI against the best so far and records a
// strictly better one.
func (f *Farm) FinishRun() RunSummary {
	r := f.RunResult()
	s := RunSummary{RunResult: r}
	if r.ROI > f.bestROI {
		f.bestROI = r.ROI
		s.NewRecord = true
	}
	s.BestROI = f.bestROI
	return s
}
