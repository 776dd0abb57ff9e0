package export

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/lmesh/pkg/formats"
	"github.com/Faultbox/lmesh/pkg/math"
)

// ComputeBounds skins every vertex of every mesh at each animation frame and
// returns one bounding record per frame, in clip order. Vertices without any
// weight stay at their rest position.
func ComputeBounds(sk *Skeleton, meshes []*Mesh, diag *Diagnostics) []formats.Bounds {
	invBind := sk.WorldBind()
	for i := range invBind {
		invBind[i] = invBind[i].Inverse()
	}

	out := make([]formats.Bounds, 0, sk.NumFrames)
	world := make([]math.Mat4, len(sk.Bones))
	skin := make([]math.Mat4, len(sk.Bones))
	done := 0
	for _, clip := range sk.Clips {
		for _, frame := range clip.Frames {
			for b, t := range frame {
				world[b] = t.Matrix()
				if p := sk.Bones[b].Parent; p >= 0 {
					world[b] = world[p].Mul(world[b])
				}
				skin[b] = world[b].Mul(invBind[b])
			}
			out = append(out, frameBounds(skin, meshes))
			done++
			diag.Progress("bounds", done, sk.NumFrames)
		}
	}
	return out
}

func frameBounds(skin []math.Mat4, meshes []*Mesh) formats.Bounds {
	var (
		bb     formats.Bounds
		lo, hi math.Vec3
		xy2    float32
		r2     float32
		first  = true
	)
	for _, m := range meshes {
		for i := range m.Vertices {
			pos := skinPosition(skin, &m.Vertices[i])
			if first {
				lo, hi, first = pos, pos, false
			} else {
				lo, hi = lo.Min(pos), hi.Max(pos)
			}
			d := pos.X*pos.X + pos.Y*pos.Y
			xy2 = math32.Max(xy2, d)
			r2 = math32.Max(r2, d+pos.Z*pos.Z)
		}
	}
	if first {
		return bb
	}
	bb.BBMin = lo.Array()
	bb.BBMax = hi.Array()
	bb.XYRadius = math32.Sqrt(xy2)
	bb.Radius = math32.Sqrt(r2)
	return bb
}

// skinPosition blends v by its weights. A vertex with no weights stays at
// its rest position rather than collapsing to the origin, so unskinned
// geometry in a skinned model still contributes to the bounds.
func skinPosition(skin []math.Mat4, v *Vertex) math.Vec3 {
	if v.Weights.Sum() == 0 {
		return v.Position
	}
	var pos math.Vec3
	for _, bw := range v.Weights {
		if bw.Weight == 0 {
			continue
		}
		p := skin[bw.Bone].TransformPoint(v.Position)
		pos = pos.Add(p.Scale(float32(bw.Weight) / 255))
	}
	return pos
}
