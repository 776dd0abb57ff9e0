package scene

import (
	"fmt"

	"github.com/Faultbox/lmesh/internal/config"
	"github.com/Faultbox/lmesh/internal/export"
	"github.com/Faultbox/lmesh/pkg/formats"
	"github.com/Faultbox/lmesh/pkg/math"
)

// Input converts the document into export input.
func (d *Document) Input(cfg config.SceneConfig) (export.Input, error) {
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	flip := float32(1)
	if Winding(cfg) == export.WindingCW {
		flip = -1
	}

	var in export.Input
	bones, order, err := d.bones(scale)
	if err != nil {
		return in, err
	}
	in.Bones = bones

	for _, a := range d.Animations {
		clip, err := a.clip(bones, order, scale)
		if err != nil {
			return in, err
		}
		in.Clips = append(in.Clips, clip)
	}

	for _, m := range d.Meshes {
		raw, err := m.raw(scale, flip, cfg.FlipV)
		if err != nil {
			return in, fmt.Errorf("mesh %q: %w", m.Name, err)
		}
		in.Meshes = append(in.Meshes, raw)
	}
	return in, nil
}

func vec3(v [3]float32) math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func quat(q *[4]float32) math.Quat {
	if q == nil {
		return math.QuatIdentity()
	}
	return math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}.Normalize()
}

func scale3(s *[3]float32) math.Vec3 {
	if s == nil {
		return math.Vec3{X: 1, Y: 1, Z: 1}
	}
	return vec3(*s)
}

// bones orders the skeleton parents first, breadth-first from the roots in
// document order. order maps bone names to their new index.
func (d *Document) bones(scale float32) ([]export.Bone, map[string]int, error) {
	byName := make(map[string]int, len(d.Bones))
	for i, b := range d.Bones {
		if _, dup := byName[b.Name]; dup {
			return nil, nil, fmt.Errorf("%w: %q", export.ErrDuplicateBone, b.Name)
		}
		byName[b.Name] = i
	}
	children := make([][]int, len(d.Bones))
	var queue []int
	for i, b := range d.Bones {
		if b.Parent == "" {
			queue = append(queue, i)
			continue
		}
		p, ok := byName[b.Parent]
		if !ok {
			return nil, nil, fmt.Errorf("%w: bone %q has parent %q", ErrUnknownParent, b.Name, b.Parent)
		}
		children[p] = append(children[p], i)
	}

	order := make(map[string]int, len(d.Bones))
	out := make([]export.Bone, 0, len(d.Bones))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		b := d.Bones[i]
		parent := -1
		if b.Parent != "" {
			parent = order[b.Parent]
		}
		order[b.Name] = len(out)
		out = append(out, export.Bone{
			Name:   b.Name,
			Parent: parent,
			Bind:   math.Compose(vec3(b.Translation).Scale(scale), quat(b.Rotation), scale3(b.Scale)),
		})
		queue = append(queue, children[i]...)
	}
	if len(out) != len(d.Bones) {
		return nil, nil, fmt.Errorf("%w: %d of %d bones unreachable from a root", ErrBoneCycle, len(d.Bones)-len(out), len(d.Bones))
	}
	return out, order, nil
}

// clip samples the animation into one transform per bone per frame.
func (a *AnimationDoc) clip(bones []export.Bone, order map[string]int, scale float32) (export.AnimationClip, error) {
	rest := make([]export.Transform, len(bones))
	for i, b := range bones {
		local := b.Bind
		if b.Parent >= 0 {
			local = bones[b.Parent].Bind.Inverse().Mul(b.Bind)
		}
		t, r, s := local.Decompose()
		rest[i] = export.Transform{Translation: t, Rotation: r, Scale: s}
	}

	clip := export.AnimationClip{Name: a.Name, FrameRate: a.FPS}
	if a.Loop {
		clip.Flags |= formats.AnimLoop
	}
	for f, frame := range a.Frames {
		pose := make([]export.Transform, len(bones))
		copy(pose, rest)
		for _, p := range frame {
			b, ok := order[p.Bone]
			if !ok {
				return clip, fmt.Errorf("%w: animation %q frame %d bone %q", ErrUnknownBone, a.Name, f, p.Bone)
			}
			if p.Translation != nil {
				pose[b].Translation = vec3(*p.Translation).Scale(scale)
			}
			if p.Rotation != nil {
				pose[b].Rotation = quat(p.Rotation)
			}
			if p.Scale != nil {
				pose[b].Scale = vec3(*p.Scale)
			}
		}
		clip.Frames = append(clip.Frames, pose)
	}
	return clip, nil
}

// raw converts a mesh into raw faces. flip is -1 when the source winding is
// clockwise so that computed normals still face outwards.
func (m *MeshDoc) raw(scale, flip float32, flipV bool) (export.RawMesh, error) {
	n := len(m.Positions)
	if len(m.Normals) != 0 && len(m.Normals) != n {
		return export.RawMesh{}, fmt.Errorf("%w: %d normals for %d positions", ErrBadVertex, len(m.Normals), n)
	}
	if len(m.Weights) != 0 && len(m.Weights) != n {
		return export.RawMesh{}, fmt.Errorf("%w: %d weight lists for %d positions", ErrBadVertex, len(m.Weights), n)
	}

	positions := make([]math.Vec3, n)
	for i, p := range m.Positions {
		positions[i] = vec3(p).Scale(scale)
	}

	for fi, f := range m.Faces {
		if err := f.validate(n); err != nil {
			return export.RawMesh{}, fmt.Errorf("face %d: %w", fi, err)
		}
	}

	normals := make([]math.Vec3, n)
	if len(m.Normals) == n {
		for i, no := range m.Normals {
			normals[i] = vec3(no).Normalize()
		}
	} else {
		for _, f := range m.Faces {
			fn := faceNormal(positions, f.Verts).Scale(flip)
			for _, v := range f.Verts {
				normals[v] = normals[v].Add(fn)
			}
		}
		for i := range normals {
			normals[i] = normals[i].Normalize()
		}
	}

	raw := export.RawMesh{Name: m.Name, Material: m.Material, SourceVertices: n}
	for _, f := range m.Faces {
		face := export.Face{Smooth: f.Smooth}
		flat := math.Vec3{}
		if !f.Smooth {
			if f.Normal != nil {
				flat = vec3(*f.Normal).Normalize()
			} else {
				flat = faceNormal(positions, f.Verts).Normalize().Scale(flip)
			}
		}
		for ci, v := range f.Verts {
			c := export.Corner{Source: v, Position: positions[v], Normal: normals[v]}
			if !f.Smooth {
				c.Normal = flat
			}
			if len(f.UVs) > 0 {
				c.UV = math.Vec2{X: f.UVs[ci][0], Y: f.UVs[ci][1]}
				if flipV {
					c.UV.Y = 1 - c.UV.Y
				}
			}
			if len(m.Weights) > 0 {
				for _, w := range m.Weights[v] {
					c.Influences = append(c.Influences, export.Influence{Bone: w.Bone, Weight: w.Weight})
				}
			}
			if len(f.Colors) > 0 {
				col := export.Color(f.Colors[ci])
				c.Color = &col
			}
			if len(f.Alpha) > 0 {
				a := f.Alpha[ci]
				c.Alpha = &a
			}
			face.Corners = append(face.Corners, c)
		}
		raw.Faces = append(raw.Faces, face)
	}
	return raw, nil
}

func (f *FaceDoc) validate(numVerts int) error {
	for _, v := range f.Verts {
		if v < 0 || v >= numVerts {
			return fmt.Errorf("%w: vertex index %d out of range [0, %d)", ErrBadFace, v, numVerts)
		}
	}
	corners := len(f.Verts)
	for _, layer := range []struct {
		name string
		n    int
	}{{"uvs", len(f.UVs)}, {"colors", len(f.Colors)}, {"alpha", len(f.Alpha)}} {
		if layer.n != 0 && layer.n != corners {
			return fmt.Errorf("%w: %d %s for %d corners", ErrBadFace, layer.n, layer.name, corners)
		}
	}
	return nil
}

// faceNormal is the unnormalized normal of the first three corners.
func faceNormal(positions []math.Vec3, verts []int) math.Vec3 {
	if len(verts) < 3 {
		return math.Vec3{}
	}
	p0, p1, p2 := positions[verts[0]], positions[verts[1]], positions[verts[2]]
	return p1.Sub(p0).Cross(p2.Sub(p0))
}
