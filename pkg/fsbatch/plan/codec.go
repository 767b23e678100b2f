package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a plan file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatFor picks the format from a file extension. Unknown extensions are
// treated as YAML.
func FormatFor(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return FormatTOML
	case ".hcl":
		return FormatHCL
	default:
		return FormatYAML
	}
}

// Load reads and decodes a plan file.
func Load(filename string) (*Plan, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Decode(data, FormatFor(filename), filename)
}

// Decode parses data in the given format. filename is only used in
// diagnostics.
func Decode(data []byte, format Format, filename string) (*Plan, error) {
	var p Plan
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse YAML plan %s: %w", filename, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse TOML plan %s: %w", filename, err)
		}
	case FormatHCL:
		hp, err := decodeHCL(data, filename)
		if err != nil {
			return nil, err
		}
		p = *hp
	default:
		return nil, fmt.Errorf("unsupported plan format %q", format)
	}
	return &p, nil
}

// Marshal encodes p. HCL plans are read-only; write YAML or TOML instead.
func Marshal(p *Plan, format Format) ([]byte, error) {
	switch format {
	case FormatYAML, "":
		return yaml.Marshal(p)
	case FormatTOML:
		return toml.Marshal(p)
	default:
		return nil, fmt.Errorf("cannot write plans as %s", format)
	}
}

// Save encodes p into filename, choosing the format by extension.
func Save(p *Plan, filename string) error {
	format := FormatFor(filename)
	if format == FormatHCL {
		return fmt.Errorf("cannot write plans as %s", format)
	}
	data, err := Marshal(p, format)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

// hclPlanFile is the top-level structure of an HCL plan.
type hclPlanFile struct {
	Description string     `hcl:"description,optional"`
	Version     string     `hcl:"version,optional"`
	Steps       []*hclStep `hcl:"step,block"`
}

type hclStep struct {
	Op      string `hcl:"op,label"`
	Path    string `hcl:"path,optional"`
	Src     string `hcl:"src,optional"`
	Dst     string `hcl:"dst,optional"`
	Content string `hcl:"content,optional"`
	Target  string `hcl:"target,optional"`
	Mode    string `hcl:"mode,optional"`
}

func decodeHCL(data []byte, filename string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL plan %s: %w", filename, diags)
	}

	var parsed hclPlanFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL plan %s: %w", filename, diags)
	}

	p := &Plan{
		Description: parsed.Description,
		Version:     parsed.Version,
		Operations:  make([]Step, 0, len(parsed.Steps)),
	}
	for _, s := range parsed.Steps {
		p.Operations = append(p.Operations, Step{
			Op:      s.Op,
			Path:    s.Path,
			Src:     s.Src,
			Dst:     s.Dst,
			Content: s.Content,
			Target:  s.Target,
			Mode:    s.Mode,
		})
	}
	return p, nil
}
