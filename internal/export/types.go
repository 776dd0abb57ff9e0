// Package export turns raw scene data into an .lmesh model: vertex
// deduplication, tangent generation, vertex cache optimization, skeleton
// quantization, per-frame bounds and the binary file layout.
package export

import (
	"github.com/Faultbox/lmesh/pkg/math"
)

// Color is an RGBA vertex color.
type Color [4]uint8

// White is the color written for uncolored vertices in a colored model.
var White = Color{255, 255, 255, 255}

// Influence is a raw skin weight referencing a bone by name.
type Influence struct {
	Bone   string
	Weight float32
}

// Corner is one face vertex with all of its raw attributes.
type Corner struct {
	// Source is the index of the source vertex this corner came from, or -1.
	// Smooth corners with the same Source try to share one output vertex.
	Source     int
	Position   math.Vec3
	Normal     math.Vec3
	UV         math.Vec2
	Influences []Influence
	Color      *Color
	// Alpha is an independent alpha layer value. It overrides Color's alpha,
	// or yields white with this alpha when Color is nil.
	Alpha *uint8
}

// Face is a polygon; faces with more than three corners are fan-triangulated.
type Face struct {
	Smooth  bool
	Corners []Corner
}

// RawMesh is a mesh as produced by a host: per-face corner attributes.
type RawMesh struct {
	Name           string
	Material       string
	SourceVertices int
	Faces          []Face
}

// Winding is the front-face convention of source polygons.
type Winding int

// Source winding conventions. Output is always counter-clockwise.
const (
	WindingCCW Winding = iota
	WindingCW
)

// String returns "ccw" or "cw".
func (w Winding) String() string {
	if w == WindingCW {
		return "cw"
	}
	return "ccw"
}

// Vertex is a deduplicated output vertex.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec2
	Weights  Weights
	Color    Color
	HasColor bool

	Tangent       math.Vec3
	BitangentSign float32
}

// Triangle references three vertices of its mesh.
type Triangle [3]int

// Mesh is a processed mesh. Every triangle indexes into Vertices.
type Mesh struct {
	Name      string
	Material  string
	Vertices  []Vertex
	Triangles []Triangle

	// Set by the file layout.
	FirstVertex   int
	FirstTriangle int
}

// Transform is a translation, rotation and scale triple.
type Transform struct {
	Translation math.Vec3
	Rotation    math.Quat
	Scale       math.Vec3
}

// IdentityTransform returns the transform that changes nothing.
func IdentityTransform() Transform {
	return Transform{Rotation: math.QuatIdentity(), Scale: math.Vec3{X: 1, Y: 1, Z: 1}}
}

// Matrix returns the transform as translation * rotation * scale.
func (t Transform) Matrix() math.Mat4 {
	return math.Compose(t.Translation, t.Rotation, t.Scale)
}

// Bone is a skeleton joint. Parent is -1 for roots and always lower than
// the bone's own index.
type Bone struct {
	Name   string
	Parent int
	// Bind is the world-space rest transform.
	Bind math.Mat4
}

// AnimationClip holds sampled poses: Frames[f][b] is bone b's transform
// relative to its parent at frame f.
type AnimationClip struct {
	Name      string
	Frames    [][]Transform
	FrameRate float32
	Flags     uint32
}

// Input is everything one export consumes.
type Input struct {
	Meshes []RawMesh
	Bones  []Bone
	Clips  []AnimationClip
}
