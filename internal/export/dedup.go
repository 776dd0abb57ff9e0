package export

import (
	"github.com/Faultbox/lmesh/pkg/math"
	"go.uber.org/zap"
)

// vertexKey is the identity of an output vertex: two corners with equal keys
// share a vertex.
type vertexKey struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec2
	Weights  Weights
	Color    Color
	HasColor bool
}

func (v *Vertex) key() vertexKey {
	return vertexKey{
		Position: v.Position,
		Normal:   v.Normal,
		UV:       v.UV,
		Weights:  v.Weights,
		Color:    v.Color,
		HasColor: v.HasColor,
	}
}

// DedupOptions control how raw faces become triangles.
type DedupOptions struct {
	Winding Winding
	// Colors enables per-vertex colors; when false corner colors are ignored.
	Colors bool
}

type deduper struct {
	raw   *RawMesh
	bones map[string]int
	opts  DedupOptions
	diag  *Diagnostics

	verts   []Vertex
	slots   []int // source vertex -> index into verts, -1 when unused
	byKey   map[vertexKey]int
	tris    []Triangle
	skips   int
	scratch []BoneWeight
}

// Deduplicate converts raw faces into an indexed triangle mesh. Identical
// smooth corners share a vertex; flat corners always get their own.
// Faces with fewer than three distinct positions are skipped.
//
// Vertices that came from a source vertex keep the source order and precede
// the vertices split off by differing attributes.
func Deduplicate(raw *RawMesh, bones map[string]int, opts DedupOptions, diag *Diagnostics) (*Mesh, error) {
	d := &deduper{
		raw:   raw,
		bones: bones,
		opts:  opts,
		diag:  diag,
		slots: make([]int, raw.SourceVertices),
		byKey: make(map[vertexKey]int),
	}
	for i := range d.slots {
		d.slots[i] = -1
	}

	for fi := range raw.Faces {
		if err := d.addFace(&raw.Faces[fi]); err != nil {
			return nil, err
		}
	}

	if d.skips > 0 {
		diag.Warn(Warning{Kind: WarnDegenerateFace, Mesh: raw.Name, Count: d.skips})
	}

	mesh := d.compact()
	if len(mesh.Triangles) == 0 {
		diag.Warn(Warning{Kind: WarnEmptyMesh, Mesh: raw.Name})
	}
	diag.Logger().Debug("deduplicated mesh",
		zap.String("mesh", raw.Name),
		zap.Int("faces", len(raw.Faces)),
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("triangles", len(mesh.Triangles)))
	return mesh, nil
}

func (d *deduper) addFace(f *Face) error {
	if len(f.Corners) < 3 || distinctPositions(f.Corners) < 3 {
		d.skips++
		return nil
	}

	indexes := make([]int, len(f.Corners))
	for i := range f.Corners {
		v, err := d.vertex(&f.Corners[i])
		if err != nil {
			return err
		}
		if f.Smooth {
			indexes[i] = d.smooth(&f.Corners[i], v)
		} else {
			indexes[i] = len(d.verts)
			d.verts = append(d.verts, v)
		}
	}

	p0 := f.Corners[0].Position
	for i := 2; i < len(indexes); i++ {
		if p0 == f.Corners[i-1].Position && p0 == f.Corners[i].Position {
			d.skips++
			continue
		}
		tri := Triangle{indexes[0], indexes[i-1], indexes[i]}
		if d.opts.Winding == WindingCW {
			tri[1], tri[2] = tri[2], tri[1]
		}
		d.tris = append(d.tris, tri)
	}
	return nil
}

// smooth returns the index of the vertex for a smooth corner. An unused
// source slot takes the corner as is; a slot holding a different vertex
// falls back to the vertices already split off from their slots.
func (d *deduper) smooth(c *Corner, v Vertex) int {
	if c.Source >= 0 && c.Source < len(d.slots) {
		idx := d.slots[c.Source]
		if idx < 0 {
			idx = len(d.verts)
			d.verts = append(d.verts, v)
			d.slots[c.Source] = idx
			return idx
		}
		if d.verts[idx].key() == v.key() {
			return idx
		}
	}

	key := v.key()
	if idx, ok := d.byKey[key]; ok {
		return idx
	}
	idx := len(d.verts)
	d.verts = append(d.verts, v)
	d.byKey[key] = idx
	return idx
}

// vertex builds the output vertex of a corner.
func (d *deduper) vertex(c *Corner) (Vertex, error) {
	v := Vertex{
		Position: c.Position,
		Normal:   c.Normal,
		UV:       c.UV,
	}

	d.scratch = d.scratch[:0]
	for _, inf := range c.Influences {
		bone, ok := d.bones[inf.Bone]
		if !ok {
			d.diag.Warn(Warning{Kind: WarnUnknownBone, Mesh: d.raw.Name, Bone: inf.Bone})
			continue
		}
		d.scratch = append(d.scratch, BoneWeight{Bone: bone, Weight: inf.Weight})
	}
	w, err := NormalizeWeights(d.scratch)
	if err != nil {
		return v, &InputError{Op: "mesh " + d.raw.Name, Err: err}
	}
	v.Weights = w

	if d.opts.Colors {
		switch {
		case c.Color != nil:
			v.Color, v.HasColor = *c.Color, true
			if c.Alpha != nil {
				v.Color[3] = *c.Alpha
			}
		case c.Alpha != nil:
			v.Color, v.HasColor = Color{255, 255, 255, *c.Alpha}, true
		}
	}
	return v, nil
}

// compact orders slot vertices by source index, then appends the split
// vertices in creation order, and remaps the triangles.
func (d *deduper) compact() *Mesh {
	remap := make([]int, len(d.verts))
	for i := range remap {
		remap[i] = -1
	}
	out := make([]Vertex, 0, len(d.verts))
	for _, idx := range d.slots {
		if idx >= 0 {
			remap[idx] = len(out)
			out = append(out, d.verts[idx])
		}
	}
	for idx := range d.verts {
		if remap[idx] < 0 {
			remap[idx] = len(out)
			out = append(out, d.verts[idx])
		}
	}

	tris := make([]Triangle, len(d.tris))
	for i, t := range d.tris {
		tris[i] = Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	return &Mesh{
		Name:      d.raw.Name,
		Material:  d.raw.Material,
		Vertices:  out,
		Triangles: tris,
	}
}

func distinctPositions(corners []Corner) int {
	n := 0
	for i := range corners {
		dup := false
		for j := 0; j < i; j++ {
			if corners[j].Position == corners[i].Position {
				dup = true
				break
			}
		}
		if !dup {
			n++
			if n >= 3 {
				return n
			}
		}
	}
	return n
}
