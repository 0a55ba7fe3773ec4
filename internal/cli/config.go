package cli

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

// loadConfig reads tuning.yaml and crops.json from dir. Missing files fall
// back to built-in defaults.
func loadConfig(dir string) (tuning.Tuning, *catalogs.Catalogs, error) {
	tn := tuning.Defaults()
	path := filepath.Join(dir, "tuning.yaml")
	if _, err := os.Stat(path); err == nil {
		tn, err = tuning.Load(path)
		if err != nil {
			return tn, nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return tn, nil, err
	}
	cats, err := catalogs.Load(dir)
	if err != nil {
		return tn, nil, err
	}
	return tn, cats, nil
}

// readScript reads a script file, or stdin when path is "-".
func readScript(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
