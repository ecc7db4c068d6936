package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/world"
)

var (
	ErrTuningMissing = goerr.New("tuning file not found")
	ErrTuningExists  = goerr.New("tuning file already exists")
	ErrInvalidTuning = goerr.New("invalid tuning file")
)

//go:embed default.yaml
var defaultTuningYAML []byte

//go:embed schema.json
var tuningSchemaJSON string

const schemaURL = "aitown://tuning.schema.json"

var tuningSchema = jsonschema.MustCompileString(schemaURL, tuningSchemaJSON)

// Layout modes.
const (
	LayoutDefault   = "default"
	LayoutGenerated = "generated"
	LayoutCustom    = "custom"
)

// Tuning is the content of the tuning file.
type Tuning struct {
	ReportEvery  uint64                      `yaml:"report_every"`
	Needs        agents.Rules                `yaml:"needs"`
	Conversation engine.ConversationSettings `yaml:"conversation"`
	Layout       LayoutSpec                  `yaml:"layout"`
}

// LayoutSpec chooses how buildings are placed.
type LayoutSpec struct {
	Mode      string         `yaml:"mode"`
	Buildings []BuildingSpec `yaml:"buildings"`
}

// BuildingSpec is one building of a custom layout.
type BuildingSpec struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	X        int    `yaml:"x"`
	Y        int    `yaml:"y"`
	W        int    `yaml:"w"`
	H        int    `yaml:"h"`
	Capacity int    `yaml:"capacity,omitempty"`
}

// DefaultTuning returns the built-in tuning.
func DefaultTuning() Tuning {
	return Tuning{
		ReportEvery:  engine.DefaultReportEvery,
		Needs:        agents.DefaultRules(),
		Conversation: engine.DefaultConversationSettings(),
		Layout:       LayoutSpec{Mode: LayoutDefault},
	}
}

// DefaultTuningYAML returns the annotated default tuning file.
func DefaultTuningYAML() []byte {
	return bytes.Clone(defaultTuningYAML)
}

// LoadTuning reads and validates a tuning file.
func LoadTuning(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Tuning{}, goerr.Wrap(ErrTuningMissing, "read tuning", goerr.V("path", path))
	}
	if err != nil {
		return Tuning{}, goerr.Wrap(err, "read tuning", goerr.V("path", path))
	}

	t, err := ParseTuning(raw)
	if err != nil {
		return Tuning{}, goerr.Wrap(err, "parse tuning", goerr.V("path", path))
	}
	return t, nil
}

// ParseTuning validates raw YAML against the tuning schema and decodes it
// over the defaults, so omitted keys keep their default values.
func ParseTuning(raw []byte) (Tuning, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "yaml syntax", goerr.V("cause", err.Error()))
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// The schema validator works on JSON values.
	js, err := json.Marshal(doc)
	if err != nil {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "tuning is not a JSON-compatible document", goerr.V("cause", err.Error()))
	}
	var value any
	if err := json.Unmarshal(js, &value); err != nil {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "re-decode tuning", goerr.V("cause", err.Error()))
	}
	if err := tuningSchema.Validate(value); err != nil {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "schema violation", goerr.V("cause", err.Error()))
	}

	t := DefaultTuning()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "decode tuning", goerr.V("cause", err.Error()))
	}
	if t.Layout.Mode == "" {
		t.Layout.Mode = LayoutDefault
	}
	if t.Layout.Mode == LayoutCustom && len(t.Layout.Buildings) == 0 {
		return Tuning{}, goerr.Wrap(ErrInvalidTuning, "custom layout needs at least one building")
	}
	return t, nil
}

// Scaffold writes the default tuning file to path. An existing file is
// only replaced when force is set.
func Scaffold(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return goerr.Wrap(ErrTuningExists, "scaffold tuning", goerr.V("path", path))
		}
	}
	if err := os.WriteFile(path, defaultTuningYAML, 0o644); err != nil {
		return goerr.Wrap(err, "write tuning", goerr.V("path", path))
	}
	return nil
}

// Buildings builds the town layout described by the tuning. The default
// layout falls back to a generated one when it does not fit the grid.
func (t Tuning) Buildings(g world.Grid, seed int64) ([]world.Building, error) {
	switch t.Layout.Mode {
	case LayoutDefault, "":
		b := world.DefaultLayout()
		if err := world.ValidateLayout(g, b); err == nil {
			return b, nil
		}
		slog.Warn("default layout does not fit the grid, generating one", "grid", g)
		return world.GenerateLayout(g, seed)

	case LayoutGenerated:
		return world.GenerateLayout(g, seed)

	case LayoutCustom:
		out := make([]world.Building, 0, len(t.Layout.Buildings))
		for _, spec := range t.Layout.Buildings {
			bt, err := world.ParseBuildingType(strings.TrimSpace(spec.Type))
			if err != nil {
				return nil, goerr.Wrap(err, "custom layout", goerr.V("building", spec.ID))
			}
			b := world.NewBuilding(spec.ID, bt, world.Point{X: spec.X, Y: spec.Y}, spec.W, spec.H)
			if spec.Capacity > 0 {
				b.Capacity = spec.Capacity
			}
			out = append(out, b)
		}
		if err := world.ValidateLayout(g, out); err != nil {
			return nil, goerr.Wrap(err, "custom layout")
		}
		return out, nil
	}
	return nil, goerr.Wrap(ErrInvalidTuning, "unknown layout mode", goerr.V("mode", t.Layout.Mode))
}
