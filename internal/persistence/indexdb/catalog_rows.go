package indexdb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// catalogRows returns the configuration a server runs with: the crop table
// as loaded (raw file if present) and the tuning values actually applied.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if cats != nil {
		var raw []byte
		if configDir != "" {
			raw, _ = os.ReadFile(filepath.Join(configDir, "crops.json"))
		}
		if len(raw) == 0 {
			raw, _ = json.Marshal(cats.Sorted())
		}
		rows = append(rows, catalogRow{name: "crops", digest: cats.Crops.Digest, json: raw})
	}

	b, _ := json.Marshal(tune)
	sum := sha256.Sum256(b)
	rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	return rows
}
