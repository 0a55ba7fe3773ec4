package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"cyberfarm.ai/internal/session"
)

// ListFiles returns <prefix>-*.jsonl.zst files in dir, oldest first.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadRunFile decodes every entry of one run log file in order.
func ReadRunFile(path string, fn func(session.RunLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		var e session.RunLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), n, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

// RecordedRun is one run reassembled from the log.
type RecordedRun struct {
	Start  session.RunLogEntry
	Events []session.RunLogEntry
	End    *session.RunLogEntry // nil if the log ends mid-run
}

func (r *RecordedRun) ID() string { return r.Start.RunID }

// ReadRuns reassembles runs from all run log files in dir, in start order.
// Entries whose run_start was not seen (e.g. rotated away) are skipped.
func ReadRuns(dir string) ([]*RecordedRun, error) {
	files, err := ListFiles(dir, RunPrefix)
	if err != nil {
		return nil, err
	}
	var (
		runs []*RecordedRun
		byID = map[string]*RecordedRun{}
	)
	for _, path := range files {
		err := ReadRunFile(path, func(e session.RunLogEntry) error {
			switch e.Kind {
			case session.KindRunStart:
				r := &RecordedRun{Start: e}
				byID[e.RunID] = r
				runs = append(runs, r)
			case session.KindRunEvent:
				if r := byID[e.RunID]; r != nil {
					r.Events = append(r.Events, e)
				}
			case session.KindRunEnd:
				if r := byID[e.RunID]; r != nil {
					end := e
					r.End = &end
				}
			default:
				return fmt.Errorf("%s: unknown entry kind %q", filepath.Base(path), e.Kind)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}
