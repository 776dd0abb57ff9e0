// Package scene reads scene documents: YAML descriptions of meshes, a bind
// skeleton and sampled animations, and turns them into export input.
package scene

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/lmesh/internal/config"
	"github.com/Faultbox/lmesh/internal/export"
	"github.com/Faultbox/lmesh/pkg/encoding"
)

// Scene document errors.
var (
	ErrUnknownParent = errors.New("bone parent not found")
	ErrBoneCycle     = errors.New("bone hierarchy has a cycle")
	ErrUnknownBone   = errors.New("animation references unknown bone")
	ErrBadFace       = errors.New("malformed face")
	ErrBadVertex     = errors.New("malformed vertex data")
)

// Document is the top-level scene file.
type Document struct {
	Meshes     []MeshDoc      `yaml:"meshes"`
	Bones      []BoneDoc      `yaml:"bones"`
	Animations []AnimationDoc `yaml:"animations"`
}

// MeshDoc is one mesh with a single material. Normals and weights are per
// source vertex and parallel to Positions.
type MeshDoc struct {
	Name      string        `yaml:"name"`
	Material  string        `yaml:"material"`
	Positions [][3]float32  `yaml:"positions"`
	Normals   [][3]float32  `yaml:"normals"`
	Weights   [][]WeightDoc `yaml:"weights"`
	Faces     []FaceDoc     `yaml:"faces"`
}

// WeightDoc is one bone influence.
type WeightDoc struct {
	Bone   string  `yaml:"bone"`
	Weight float32 `yaml:"weight"`
}

// FaceDoc is a polygon. UVs, Colors and Alpha are per corner when present.
type FaceDoc struct {
	Verts  []int        `yaml:"verts"`
	UVs    [][2]float32 `yaml:"uvs"`
	Smooth bool         `yaml:"smooth"`
	Normal *[3]float32  `yaml:"normal"`
	Colors [][4]uint8   `yaml:"colors"`
	Alpha  []uint8      `yaml:"alpha"`
}

// BoneDoc is a bone's world-space bind transform.
type BoneDoc struct {
	Name        string      `yaml:"name"`
	Parent      string      `yaml:"parent"`
	Translation [3]float32  `yaml:"translation"`
	Rotation    *[4]float32 `yaml:"rotation"` // x, y, z, w
	Scale       *[3]float32 `yaml:"scale"`
}

// AnimationDoc is a clip of sampled frames.
type AnimationDoc struct {
	Name   string      `yaml:"name"`
	FPS    float32     `yaml:"fps"`
	Loop   bool        `yaml:"loop"`
	Frames [][]PoseDoc `yaml:"frames"`
}

// PoseDoc is a bone's transform relative to its parent in one frame. Missing
// fields keep the bone's bind pose.
type PoseDoc struct {
	Bone        string      `yaml:"bone"`
	Translation *[3]float32 `yaml:"translation"`
	Rotation    *[4]float32 `yaml:"rotation"`
	Scale       *[3]float32 `yaml:"scale"`
}

// Load reads and converts a scene document from disk.
func Load(path string, cfg config.SceneConfig) (export.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return export.Input{}, fmt.Errorf("reading scene: %w", err)
	}
	in, err := Parse(data, cfg)
	if err != nil {
		return export.Input{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// Parse decodes a scene document written in cfg.NameEncoding and converts it.
func Parse(data []byte, cfg config.SceneConfig) (export.Input, error) {
	dec, err := encoding.Lookup(cfg.NameEncoding)
	if err != nil {
		return export.Input{}, err
	}
	text, err := dec.Decode(string(data))
	if err != nil {
		return export.Input{}, err
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return export.Input{}, fmt.Errorf("parsing scene: %w", err)
	}
	return doc.Input(cfg)
}

// Winding returns the export winding named by cfg.
func Winding(cfg config.SceneConfig) export.Winding {
	if strings.EqualFold(cfg.Winding, config.WindingCW) {
		return export.WindingCW
	}
	return export.WindingCCW
}

// Options returns the export options cfg asks for. The logger and progress
// callback are left for the caller.
func Options(cfg *config.Config) export.Options {
	return export.Options{
		Bounds:  cfg.Export.Bounds,
		Colors:  cfg.Export.Colors,
		Winding: Winding(cfg.Scene),
	}
}

// Select drops the parts of in that exp disables. Without a skeleton, vertex
// influences are dropped as well.
func Select(in *export.Input, exp config.ExportConfig) {
	if !exp.Meshes {
		in.Meshes = nil
	}
	if exp.Skeleton {
		return
	}
	in.Bones = nil
	in.Clips = nil
	for mi := range in.Meshes {
		for fi := range in.Meshes[mi].Faces {
			for ci := range in.Meshes[mi].Faces[fi].Corners {
				in.Meshes[mi].Faces[fi].Corners[ci].Influences = nil
			}
		}
	}
}
