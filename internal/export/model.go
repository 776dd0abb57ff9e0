package export

import (
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lmesh/pkg/formats"
)

// Options control one export.
type Options struct {
	// Bounds requests one bounding record per animation frame.
	Bounds bool
	// Colors enables per-vertex colors.
	Colors bool
	// Winding is the front-face convention of the input faces.
	Winding Winding
	// Logger receives debug and warning output. Nil discards it.
	Logger *zap.Logger
	// Progress, if set, is told how far long-running stages have come.
	Progress ProgressFunc
}

// MeshReport describes one processed mesh.
type MeshReport struct {
	Name     string
	Material string
	Cache    CacheStats
}

// Report is the outcome of a successful build.
type Report struct {
	Warnings []Warning
	Meshes   []MeshReport
	FileSize uint32
	Frames   int
}

// Model is a fully laid out model: every offset and count is known and only
// the bytes remain to be written.
type Model struct {
	Header formats.Header
	Meshes []*Mesh

	attrs    uint32
	text     []byte
	records  []formats.Mesh
	skeleton *Skeleton
	joints   []formats.Joint
	poses    []formats.Pose
	anims    []formats.Anim
	bounds   []formats.Bounds
}

// Attrs returns the vertex attributes the model carries.
func (m *Model) Attrs() uint32 {
	return m.attrs
}

// BuildModel runs the whole pipeline and lays out the file. Input errors are
// reported before any processing starts where possible, and always before
// anything is written.
func BuildModel(in Input, opts Options) (*Model, *Report, error) {
	diag := NewDiagnostics(opts.Logger, opts.Progress)
	log := diag.Logger()
	start := time.Now()

	sk, err := QuantizeSkeleton(in.Bones, in.Clips)
	if err != nil {
		return nil, nil, err
	}
	boneIndex := make(map[string]int, len(in.Bones))
	for i, b := range in.Bones {
		boneIndex[b.Name] = i
	}

	report := &Report{Frames: sk.NumFrames}
	model := &Model{skeleton: sk}
	dopts := DedupOptions{Winding: opts.Winding, Colors: opts.Colors}
	for i := range in.Meshes {
		raw := &in.Meshes[i]
		mesh, err := Deduplicate(raw, boneIndex, dopts, diag)
		if err != nil {
			return nil, nil, err
		}
		GenerateTangents(mesh)
		stats := OptimizeVertexCache(mesh)
		log.Debug("optimized mesh",
			zap.String("mesh", mesh.Name),
			zap.String("material", mesh.Material),
			zap.Int("vertices", stats.Vertices),
			zap.Int("triangles", stats.Triangles),
			zap.Int("loads", stats.Loads),
			zap.Float64("acmr", stats.ACMR()))
		model.Meshes = append(model.Meshes, mesh)
		report.Meshes = append(report.Meshes, MeshReport{Name: mesh.Name, Material: mesh.Material, Cache: stats})
		diag.Progress("meshes", i+1, len(in.Meshes))
	}

	model.layout(opts, diag)
	report.Warnings = diag.Warnings
	report.FileSize = model.Header.FileSize
	log.Debug("model laid out",
		zap.Uint32("size", model.Header.FileSize),
		zap.Duration("elapsed", time.Since(start)))
	return model, report, nil
}

// layout assigns every section its count and offset.
func (m *Model) layout(opts Options, diag *Diagnostics) {
	sk := m.skeleton
	strs := NewStringTable()

	m.attrs = formats.BaseAttrs
	if len(sk.Bones) > 0 {
		m.attrs |= formats.AttrBones
	}
	for _, mesh := range m.Meshes {
		if m.attrs&formats.AttrColor != 0 {
			break
		}
		for i := range mesh.Vertices {
			if mesh.Vertices[i].HasColor {
				m.attrs |= formats.AttrColor
				break
			}
		}
	}

	numVerts, numTris := 0, 0
	for _, mesh := range m.Meshes {
		mesh.FirstVertex = numVerts
		mesh.FirstTriangle = numTris
		numVerts += len(mesh.Vertices)
		numTris += len(mesh.Triangles)
		m.records = append(m.records, formats.Mesh{
			Name:          strs.Add(mesh.Name),
			Material:      strs.Add(mesh.Material),
			FirstVertex:   uint32(mesh.FirstVertex),
			NumVertexes:   uint32(len(mesh.Vertices)),
			FirstTriangle: uint32(mesh.FirstTriangle),
			NumTriangles:  uint32(len(mesh.Triangles)),
		})
	}

	for _, j := range sk.Joints {
		m.joints = append(m.joints, formats.Joint{
			Name:         strs.Add(j.Name),
			Parent:       int32(j.Parent),
			Translate:    j.Local.Translation.Array(),
			InvTranslate: j.Inverse.Translation.Array(),
			Rotate:       j.Local.Rotation.Array(),
			InvRotate:    j.Inverse.Rotation.Array(),
			Scale:        j.Local.Scale.Array(),
			InvScale:     j.Inverse.Scale.Array(),
		})
	}

	if len(sk.Clips) > 0 {
		for b := range sk.Bones {
			m.poses = append(m.poses, sk.Pose(b))
		}
	}
	first := 0
	for _, clip := range sk.Clips {
		m.anims = append(m.anims, formats.Anim{
			Name:       strs.Add(clip.Name),
			FirstFrame: uint32(first),
			NumFrames:  uint32(len(clip.Frames)),
			FrameRate:  clip.FrameRate,
			Flags:      clip.Flags,
		})
		first += len(clip.Frames)
	}

	diag.Logger().Info("exporting frames",
		zap.Int("frames", sk.NumFrames),
		zap.Int("channels", sk.FrameChannels))
	if opts.Bounds && numVerts > 0 && sk.NumFrames > 0 {
		m.bounds = ComputeBounds(sk, m.Meshes, diag)
	}

	m.text = strs.Bytes()
	vsize := formats.VertexSize(m.attrs)

	h := &m.Header
	copy(h.Magic[:], formats.Magic)
	h.Version = formats.Version
	h.Flags = m.attrs
	h.VertexSize = vsize

	ofs := uint32(formats.HeaderSize)
	section := func(count, size uint32) uint32 {
		if count == 0 {
			return 0
		}
		at := ofs
		ofs += count * size
		return at
	}

	h.NumText = uint32(len(m.text))
	h.OfsText = section(h.NumText, 1)
	h.NumMeshes = uint32(len(m.records))
	h.OfsMeshes = section(h.NumMeshes, formats.MeshSize)
	h.NumVertexes = uint32(numVerts)
	h.OfsVertexes = section(h.NumVertexes, vsize)
	h.NumTriangles = uint32(numTris)
	h.OfsTriangles = section(h.NumTriangles, formats.TriangleSize)
	h.NumJoints = uint32(len(m.joints))
	h.OfsJoints = section(h.NumJoints, formats.JointSize)
	h.NumPoses = uint32(len(m.poses))
	h.OfsPoses = section(h.NumPoses, formats.PoseSize)
	h.NumAnims = uint32(len(m.anims))
	h.OfsAnims = section(h.NumAnims, formats.AnimSize)
	h.NumFrames = uint32(sk.NumFrames)
	h.NumFrameChannels = uint32(sk.FrameChannels)
	h.OfsFrames = section(h.NumFrames*h.NumFrameChannels, 2)
	ofs = uint32(align4(int(ofs)))
	h.OfsBounds = section(uint32(len(m.bounds)), formats.BoundsSize)
	h.FileSize = ofs
}
