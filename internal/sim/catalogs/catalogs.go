package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type Catalogs struct {
	Actors ActorCatalog
}

type ActorCatalog struct {
	Palette       []string
	Defs          map[string]ActorDef
	PaletteDigest string
	DefsDigest    string
}

type ActorDef struct {
	ID              string             `json:"id"`
	Kind            modelpkg.ActorKind `json:"kind"`
	CaptureExcluded bool               `json:"capture_excluded,omitempty"`
	Attractable     bool               `json:"attractable,omitempty"`
	MaxHP           int                `json:"max_hp,omitempty"`
}

// Load reads actors.json and, when present, every *.json file under
// actor_packs/ in name order. Pack entries override base entries by id.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadActors(filepath.Join(configDir, "actors.json"), filepath.Join(configDir, "actor_packs"), &c.Actors); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadActors(path, packDir string, out *ActorCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var concat bytes.Buffer
	concat.Write(raw)

	out.Defs = map[string]ActorDef{}
	if err := mergeActorDefs(raw, "actors.json", out.Defs); err != nil {
		return err
	}

	packs, err := packFiles(packDir)
	if err != nil {
		return err
	}
	for _, p := range packs {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.WriteByte('\n')
		concat.Write(b)
		if err := mergeActorDefs(b, filepath.Base(p), out.Defs); err != nil {
			return err
		}
	}
	out.DefsDigest = sha256Hex(concat.Bytes())

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func mergeActorDefs(raw []byte, name string, into map[string]ActorDef) error {
	var defs []ActorDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", name)
		}
		switch d.Kind {
		case "":
			d.Kind = modelpkg.ActorKindMob
		case modelpkg.ActorKindPlayer, modelpkg.ActorKindMob, modelpkg.ActorKindObject:
		default:
			return fmt.Errorf("%s: %s: unknown kind %q", name, d.ID, d.Kind)
		}
		into[d.ID] = d
	}
	return nil
}

func packFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (c ActorCatalog) Lookup(id string) (ActorDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

// Excluded lists the capture-excluded ids in palette order.
func (c ActorCatalog) Excluded() []string {
	var out []string
	for _, id := range c.Palette {
		if c.Defs[id].CaptureExcluded {
			out = append(out, id)
		}
	}
	return out
}
