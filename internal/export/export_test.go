package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/lmesh/pkg/formats"
	"github.com/Faultbox/lmesh/pkg/math"
)

func skinnedQuad() RawMesh {
	raw := quadMesh(true)
	for fi := range raw.Faces {
		for ci := range raw.Faces[fi].Corners {
			c := &raw.Faces[fi].Corners[ci]
			if c.Position.Y > 0 {
				c.Influences = []Influence{{Bone: "arm", Weight: 1}}
			} else {
				c.Influences = []Influence{{Bone: "root", Weight: 0.6}, {Bone: "arm", Weight: 0.4}}
			}
		}
	}
	return raw
}

func exportAndParse(t *testing.T, in Input, opts Options) (*formats.LMesh, *Report, []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.lmesh")
	report, err := Export(path, in, opts)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lm, err := formats.ParseLMesh(data)
	require.NoError(t, err)
	return lm, report, data
}

func TestExport_StaticMesh(t *testing.T) {
	lm, report, data := exportAndParse(t, Input{Meshes: []RawMesh{quadMesh(true)}}, Options{})

	h := lm.Header
	assert.Equal(t, formats.BaseAttrs, h.Flags)
	assert.Equal(t, uint32(48), h.VertexSize)
	assert.Equal(t, uint32(len(data)), h.FileSize)
	assert.Equal(t, report.FileSize, h.FileSize)
	assert.Equal(t, uint32(1), h.NumMeshes)
	assert.Equal(t, uint32(4), h.NumVertexes)
	assert.Equal(t, uint32(2), h.NumTriangles)
	assert.Zero(t, h.NumJoints)
	assert.Zero(t, h.NumPoses)
	assert.Zero(t, h.NumAnims)
	assert.Zero(t, h.NumFrames)
	assert.Zero(t, h.OfsBounds)

	require.Len(t, lm.Meshes, 1)
	assert.Equal(t, "quad", lm.String(lm.Meshes[0].Name))
	assert.Equal(t, "stone.png", lm.String(lm.Meshes[0].Material))
	assert.Equal(t, "", lm.String(0))

	for _, v := range lm.Vertices {
		assert.Equal(t, [3]float32{0, 0, 1}, v.Normal)
		assert.InDelta(t, 1, v.Tangent[0], 1e-6)
		assert.Contains(t, []float32{-1, 1}, v.Tangent[3])
	}

	require.Len(t, report.Meshes, 1)
	assert.Equal(t, 4, report.Meshes[0].Cache.Vertices)
	assert.Empty(t, report.Warnings)
}

func TestExport_SkinnedAnimated(t *testing.T) {
	in := Input{
		Meshes: []RawMesh{skinnedQuad()},
		Bones:  armBones(),
		Clips:  []AnimationClip{waveClip(3)},
	}
	lm, report, _ := exportAndParse(t, in, Options{Bounds: true})

	h := lm.Header
	assert.Equal(t, formats.BaseAttrs|formats.AttrBones, h.Flags)
	assert.Equal(t, uint32(56), h.VertexSize)
	assert.Equal(t, uint32(2), h.NumJoints)
	assert.Equal(t, uint32(2), h.NumPoses)
	assert.Equal(t, uint32(1), h.NumAnims)
	assert.Equal(t, uint32(3), h.NumFrames)
	assert.Equal(t, uint32(3), h.NumFrameChannels)
	assert.Equal(t, 3, report.Frames)

	require.Len(t, lm.Joints, 2)
	assert.Equal(t, "root", lm.String(lm.Joints[0].Name))
	assert.Equal(t, int32(-1), lm.Joints[0].Parent)
	assert.Equal(t, "arm", lm.String(lm.Joints[1].Name))
	assert.Equal(t, int32(0), lm.Joints[1].Parent)
	assert.InDelta(t, 1, lm.Joints[1].Translate[1], 1e-6)
	assert.LessOrEqual(t, lm.Joints[1].Rotate[3], float32(0))

	require.Len(t, lm.Anims, 1)
	anim := lm.Anims[0]
	assert.Equal(t, "wave", lm.String(anim.Name))
	assert.Equal(t, uint32(0), anim.FirstFrame)
	assert.Equal(t, uint32(3), anim.NumFrames)
	assert.Equal(t, float32(30), anim.FrameRate)
	assert.Equal(t, formats.AnimLoop, anim.Flags)

	// Names are interned meshes first, then joints, then animations.
	mesh := lm.Meshes[0]
	assert.Less(t, mesh.Name, mesh.Material)
	assert.Less(t, mesh.Material, lm.Joints[0].Name)
	assert.Less(t, lm.Joints[1].Name, anim.Name)

	for f := 0; f < 3; f++ {
		pose := lm.DecodeFrame(f)
		assert.InDelta(t, 1+float32(f), pose[1][formats.ChanTY], 1e-4, "frame %d", f)
	}

	for i, v := range lm.Vertices {
		sum := 0
		for _, w := range v.BlendWeights {
			sum += int(w)
		}
		assert.Equal(t, 255, sum, "vertex %d", i)
	}

	require.Len(t, lm.Bounds, 3)
	assert.Equal(t, uint32(0), h.OfsBounds%4)
	for f := 1; f < 3; f++ {
		assert.Greater(t, lm.Bounds[f].BBMax[1], lm.Bounds[f-1].BBMax[1], "arm rises every frame")
	}
}

func TestExport_Colors(t *testing.T) {
	raw := quadMesh(true)
	blue := Color{0, 0, 255, 200}
	raw.Faces[0].Corners[1].Color = &blue

	lm, _, _ := exportAndParse(t, Input{Meshes: []RawMesh{raw, quadMesh(true)}}, Options{Colors: true})

	assert.Equal(t, formats.BaseAttrs|formats.AttrColor, lm.Header.Flags)
	assert.Equal(t, uint32(52), lm.Header.VertexSize)
	require.Len(t, lm.Meshes, 2)

	var colored, white int
	for _, v := range lm.Vertices {
		switch v.Color {
		case [4]uint8(blue):
			colored++
		case [4]uint8(White):
			white++
		}
	}
	assert.Equal(t, 1, colored)
	assert.Equal(t, 7, white, "uncolored vertices in a colored model are opaque white")

	// Colors stay off unless enabled.
	plain, _, _ := exportAndParse(t, Input{Meshes: []RawMesh{raw}}, Options{})
	assert.Equal(t, formats.BaseAttrs, plain.Header.Flags)
}

func TestExport_SkeletonWithoutAnimations(t *testing.T) {
	in := Input{Meshes: []RawMesh{skinnedQuad()}, Bones: armBones()}
	lm, _, _ := exportAndParse(t, in, Options{Bounds: true})

	h := lm.Header
	assert.Equal(t, uint32(2), h.NumJoints)
	assert.Zero(t, h.NumPoses)
	assert.Zero(t, h.NumAnims)
	assert.Zero(t, h.NumFrames)
	assert.Zero(t, h.OfsFrames)
	assert.Zero(t, h.OfsBounds, "no frames means no bounds")
}

func TestExport_SectionsAreContiguous(t *testing.T) {
	in := Input{
		Meshes: []RawMesh{skinnedQuad(), gridMesh(3)},
		Bones:  armBones(),
		Clips:  []AnimationClip{waveClip(3), waveClip(2)},
	}
	in.Clips[1].Name = "wave2"
	lm, _, data := exportAndParse(t, in, Options{Bounds: true})
	h := lm.Header

	type section struct {
		name      string
		ofs, size uint32
	}
	sections := []section{
		{"text", h.OfsText, h.NumText},
		{"meshes", h.OfsMeshes, h.NumMeshes * formats.MeshSize},
		{"vertexes", h.OfsVertexes, h.NumVertexes * h.VertexSize},
		{"triangles", h.OfsTriangles, h.NumTriangles * formats.TriangleSize},
		{"joints", h.OfsJoints, h.NumJoints * formats.JointSize},
		{"poses", h.OfsPoses, h.NumPoses * formats.PoseSize},
		{"anims", h.OfsAnims, h.NumAnims * formats.AnimSize},
		{"frames", h.OfsFrames, h.NumFrames * h.NumFrameChannels * 2},
	}
	end := uint32(formats.HeaderSize)
	for _, s := range sections {
		assert.Equal(t, end, s.ofs, "section %s", s.name)
		end = s.ofs + s.size
	}
	end = (end + 3) &^ 3
	assert.Equal(t, end, h.OfsBounds)
	assert.Equal(t, h.OfsBounds+h.NumFrames*formats.BoundsSize, h.FileSize)
	assert.Equal(t, uint32(len(data)), h.FileSize)
	assert.Zero(t, h.NumText%4)

	assert.Equal(t, uint32(3), lm.Anims[1].FirstFrame)
	assert.Equal(t, uint32(2), lm.Anims[1].NumFrames)

	// Triangles index into their own mesh's vertex range.
	for _, m := range lm.Meshes {
		for _, tri := range lm.Triangles[m.FirstTriangle : m.FirstTriangle+m.NumTriangles] {
			for _, idx := range tri.Vertex {
				assert.GreaterOrEqual(t, idx, m.FirstVertex)
				assert.Less(t, idx, m.FirstVertex+m.NumVertexes)
			}
		}
	}
}

func TestExport_Deterministic(t *testing.T) {
	in := Input{
		Meshes: []RawMesh{skinnedQuad(), gridMesh(5)},
		Bones:  armBones(),
		Clips:  []AnimationClip{waveClip(4)},
	}
	var a, b bytes.Buffer
	for _, buf := range []*bytes.Buffer{&a, &b} {
		model, _, err := BuildModel(in, Options{Bounds: true})
		require.NoError(t, err)
		n, err := model.WriteTo(buf)
		require.NoError(t, err)
		assert.Equal(t, int64(model.Header.FileSize), n)
	}
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestExport_InputErrors(t *testing.T) {
	dir := t.TempDir()
	tooMany := make([]Bone, MaxBones+1)
	for i := range tooMany {
		tooMany[i] = Bone{Name: string(rune(0x4E00 + i)), Parent: -1, Bind: math.Identity()}
	}

	tests := []struct {
		name string
		file string
		in   Input
		want error
	}{
		{"wrong extension", "model.obj", Input{Meshes: []RawMesh{quadMesh(true)}}, ErrBadExtension},
		{"no extension", "model", Input{}, ErrBadExtension},
		{"no destination", "", Input{}, ErrNoDestination},
		{"too many bones", "bones.lmesh", Input{Bones: tooMany}, ErrTooManyBones},
		{"missing directory", filepath.Join("missing", "model.lmesh"), Input{}, ErrUnwritable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = filepath.Join(dir, tt.file)
			}
			_, err := Export(path, tt.in, Options{})

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			if path != "" {
				_, statErr := os.Stat(path)
				assert.True(t, os.IsNotExist(statErr), "nothing may be written")
			}
		})
	}
}

func TestExport_ExtensionCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MODEL.LMesh")
	_, err := Export(path, Input{Meshes: []RawMesh{quadMesh(true)}}, Options{})
	require.NoError(t, err)

	lm, err := formats.ParseLMeshFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), lm.Header.NumVertexes)
}

func TestExport_Warnings(t *testing.T) {
	raw := skinnedQuad()
	raw.Faces[0].Corners[0].Influences = append(raw.Faces[0].Corners[0].Influences, Influence{Bone: "tail", Weight: 1})
	raw.Faces = append(raw.Faces, Face{Corners: []Corner{corner(0, 0, 0, 0)}})
	in := Input{Meshes: []RawMesh{raw, {Name: "hollow"}}, Bones: armBones()}

	_, report, _ := exportAndParse(t, in, Options{})

	kinds := make(map[WarningKind]int)
	for _, w := range report.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, map[WarningKind]int{
		WarnUnknownBone:    1,
		WarnDegenerateFace: 1,
		WarnEmptyMesh:      1,
	}, kinds)
}
