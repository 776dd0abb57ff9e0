package export

import (
	"github.com/Faultbox/lmesh/pkg/math"
)

var up = math.Vec3{Z: 1}

func corner(src int, x, y, z float32) Corner {
	return Corner{
		Source:   src,
		Position: math.Vec3{X: x, Y: y, Z: z},
		Normal:   up,
		UV:       math.Vec2{X: x, Y: y},
	}
}

// quadMesh is a unit square in the XY plane split into two faces sharing
// the diagonal 0-2.
func quadMesh(smooth bool) RawMesh {
	c := []Corner{
		corner(0, 0, 0, 0),
		corner(1, 1, 0, 0),
		corner(2, 1, 1, 0),
		corner(3, 0, 1, 0),
	}
	return RawMesh{
		Name:           "quad",
		Material:       "stone.png",
		SourceVertices: 4,
		Faces: []Face{
			{Smooth: smooth, Corners: []Corner{c[0], c[1], c[2]}},
			{Smooth: smooth, Corners: []Corner{c[0], c[2], c[3]}},
		},
	}
}

// gridMesh is an n by n grid of smooth quads.
func gridMesh(n int) RawMesh {
	idx := func(x, y int) int { return y*(n+1) + x }
	at := func(x, y int) Corner {
		return corner(idx(x, y), float32(x), float32(y), 0)
	}
	m := RawMesh{Name: "grid", SourceVertices: (n + 1) * (n + 1)}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			m.Faces = append(m.Faces, Face{
				Smooth:  true,
				Corners: []Corner{at(x, y), at(x+1, y), at(x+1, y+1), at(x, y+1)},
			})
		}
	}
	return m
}

// redo turns a processed mesh back into raw smooth faces.
func redo(m *Mesh) RawMesh {
	raw := RawMesh{Name: m.Name, Material: m.Material, SourceVertices: len(m.Vertices)}
	for _, tri := range m.Triangles {
		var f Face
		f.Smooth = true
		for _, idx := range tri {
			v := m.Vertices[idx]
			c := Corner{Source: idx, Position: v.Position, Normal: v.Normal, UV: v.UV}
			if v.HasColor {
				col := v.Color
				c.Color = &col
			}
			f.Corners = append(f.Corners, c)
		}
		raw.Faces = append(raw.Faces, f)
	}
	return raw
}

func u8(v uint8) *uint8 { return &v }
