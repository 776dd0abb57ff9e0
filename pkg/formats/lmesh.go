// Package formats describes the .lmesh model file layout and parses it back.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/Faultbox/lmesh/pkg/encoding"
)

// LMesh format errors.
var (
	ErrInvalidLMeshMagic       = errors.New("invalid LMesh magic: expected '_LMesh_'")
	ErrUnsupportedLMeshVersion = errors.New("unsupported LMesh version")
	ErrTruncatedLMeshData      = errors.New("truncated LMesh data")
	ErrBadSectionOffset        = errors.New("LMesh section out of bounds")
	ErrBadVertexSize           = errors.New("LMesh vertex size does not match attributes")
	ErrBadJointParent          = errors.New("LMesh joint parent must precede the joint")
)

// Magic is the 8-byte file tag, NUL included.
const Magic = "_LMesh_\x00"

// Version is the only format version written and read.
const Version = 2

// Extension is the file extension model files must carry.
const Extension = ".lmesh"

// Record sizes in bytes.
const (
	HeaderSize   = 8 + 22*4
	MeshSize     = 6 * 4
	TriangleSize = 3 * 4
	JointSize    = 4 + 4 + 20*4
	PoseSize     = 4 + 4 + 20*4
	AnimSize     = 5 * 4
	BoundsSize   = 8 * 4
)

// Vertex attribute bits stored in Header.Flags.
const (
	AttrPosition uint32 = 1 << 0 // 12 bytes: 3 floats
	AttrNormal   uint32 = 1 << 1 // 12 bytes: 3 floats
	AttrTexCoord uint32 = 1 << 2 // 8 bytes: 2 floats
	AttrTangent  uint32 = 1 << 3 // 16 bytes: 4 floats, w = bitangent sign
	AttrBones    uint32 = 1 << 4 // 8 bytes: 4 blend indexes + 4 blend weights
	AttrColor    uint32 = 1 << 5 // 4 bytes: RGBA
)

// BaseAttrs are present in every vertex.
const BaseAttrs = AttrPosition | AttrNormal | AttrTexCoord | AttrTangent

// AnimLoop marks a looping animation in Anim.Flags.
const AnimLoop uint32 = 1 << 0

// Channel indexes within a pose: translation, rotation quaternion, scale.
const (
	ChanTX = iota
	ChanTY
	ChanTZ
	ChanQX
	ChanQY
	ChanQZ
	ChanQW
	ChanSX
	ChanSY
	ChanSZ
	NumChannels
)

// VertexSize returns the byte stride of a vertex with the given attributes.
func VertexSize(attrs uint32) uint32 {
	size := uint32(12 + 12 + 8 + 16)
	if attrs&AttrBones != 0 {
		size += 8
	}
	if attrs&AttrColor != 0 {
		size += 4
	}
	return size
}

// Header is the fixed file header. All offsets are absolute byte offsets.
type Header struct {
	Magic            [8]byte
	Version          uint32
	FileSize         uint32
	Flags            uint32
	VertexSize       uint32
	NumText          uint32
	OfsText          uint32
	NumMeshes        uint32
	OfsMeshes        uint32
	NumVertexes      uint32
	OfsVertexes      uint32
	NumTriangles     uint32
	OfsTriangles     uint32
	NumJoints        uint32
	OfsJoints        uint32
	NumPoses         uint32
	OfsPoses         uint32
	NumAnims         uint32
	OfsAnims         uint32
	NumFrames        uint32
	NumFrameChannels uint32
	OfsFrames        uint32
	OfsBounds        uint32
}

// Mesh is a mesh record: a contiguous run of vertices and triangles.
type Mesh struct {
	Name          uint32
	Material      uint32
	FirstVertex   uint32
	NumVertexes   uint32
	FirstTriangle uint32
	NumTriangles  uint32
}

// Triangle holds three absolute vertex indexes.
type Triangle struct {
	Vertex [3]uint32
}

// Joint is a bone's local bind transform and its inverse.
type Joint struct {
	Name         uint32
	Parent       int32
	Translate    [3]float32
	InvTranslate [3]float32
	Rotate       [4]float32
	InvRotate    [4]float32
	Scale        [3]float32
	InvScale     [3]float32
}

// Pose holds per-channel dequantization for one bone.
type Pose struct {
	Parent        int32
	Mask          uint32
	ChannelOffset [NumChannels]float32
	ChannelScale  [NumChannels]float32
}

// Anim is an animation clip record.
type Anim struct {
	Name       uint32
	FirstFrame uint32
	NumFrames  uint32
	FrameRate  float32
	Flags      uint32
}

// Bounds is the per-frame culling volume.
type Bounds struct {
	BBMin    [3]float32
	BBMax    [3]float32
	XYRadius float32
	Radius   float32
}

// Vertex is a decoded vertex. Blend and color fields are zero when the file
// does not carry them.
type Vertex struct {
	Position     [3]float32
	Normal       [3]float32
	TexCoord     [2]float32
	Tangent      [4]float32
	BlendIndexes [4]uint8
	BlendWeights [4]uint8
	Color        [4]uint8
}

// LMesh represents a parsed model file.
type LMesh struct {
	Header    Header
	Attrs     uint32
	Text      []byte
	Meshes    []Mesh
	Vertices  []Vertex
	Triangles []Triangle
	Joints    []Joint
	Poses     []Pose
	Anims     []Anim
	Frames    []uint16
	Bounds    []Bounds
}

// ParseLMesh parses a model file from a byte slice.
func ParseLMesh(data []byte) (*LMesh, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedLMeshData
	}

	r := bytes.NewReader(data)
	m := &LMesh{}
	if err := binary.Read(r, binary.LittleEndian, &m.Header); err != nil {
		return nil, ErrTruncatedLMeshData
	}
	h := &m.Header

	if string(h.Magic[:]) != Magic {
		return nil, ErrInvalidLMeshMagic
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLMeshVersion, h.Version)
	}
	if int64(h.FileSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: header says %d bytes, have %d", ErrTruncatedLMeshData, h.FileSize, len(data))
	}

	attrs, err := resolveAttrs(h.Flags, h.VertexSize)
	if err != nil {
		return nil, err
	}
	m.Attrs = attrs

	sections := []struct {
		name       string
		count, ofs uint32
		size       uint32
	}{
		{"text", h.NumText, h.OfsText, 1},
		{"meshes", h.NumMeshes, h.OfsMeshes, MeshSize},
		{"vertexes", h.NumVertexes, h.OfsVertexes, h.VertexSize},
		{"triangles", h.NumTriangles, h.OfsTriangles, TriangleSize},
		{"joints", h.NumJoints, h.OfsJoints, JointSize},
		{"poses", h.NumPoses, h.OfsPoses, PoseSize},
		{"anims", h.NumAnims, h.OfsAnims, AnimSize},
		{"frames", h.NumFrames * h.NumFrameChannels, h.OfsFrames, 2},
	}
	for _, s := range sections {
		if s.count == 0 {
			continue
		}
		if end := uint64(s.ofs) + uint64(s.count)*uint64(s.size); s.ofs < HeaderSize || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s [%d, %d)", ErrBadSectionOffset, s.name, s.ofs, end)
		}
	}

	if h.NumText > 0 {
		m.Text = data[h.OfsText : h.OfsText+h.NumText]
	}

	m.Meshes = make([]Mesh, h.NumMeshes)
	if err := readSection(data, h.OfsMeshes, m.Meshes); err != nil {
		return nil, fmt.Errorf("reading meshes: %w", err)
	}

	m.Vertices = make([]Vertex, h.NumVertexes)
	if h.NumVertexes > 0 {
		m.readVertices(data[h.OfsVertexes:])
	}

	m.Triangles = make([]Triangle, h.NumTriangles)
	if err := readSection(data, h.OfsTriangles, m.Triangles); err != nil {
		return nil, fmt.Errorf("reading triangles: %w", err)
	}

	m.Joints = make([]Joint, h.NumJoints)
	if err := readSection(data, h.OfsJoints, m.Joints); err != nil {
		return nil, fmt.Errorf("reading joints: %w", err)
	}
	for i, j := range m.Joints {
		if j.Parent < -1 || int(j.Parent) >= i {
			return nil, fmt.Errorf("%w: joint %d has parent %d", ErrBadJointParent, i, j.Parent)
		}
	}

	m.Poses = make([]Pose, h.NumPoses)
	if err := readSection(data, h.OfsPoses, m.Poses); err != nil {
		return nil, fmt.Errorf("reading poses: %w", err)
	}

	m.Anims = make([]Anim, h.NumAnims)
	if err := readSection(data, h.OfsAnims, m.Anims); err != nil {
		return nil, fmt.Errorf("reading anims: %w", err)
	}

	m.Frames = make([]uint16, h.NumFrames*h.NumFrameChannels)
	if err := readSection(data, h.OfsFrames, m.Frames); err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}

	if h.OfsBounds != 0 {
		if end := uint64(h.OfsBounds) + uint64(h.NumFrames)*BoundsSize; h.OfsBounds < HeaderSize || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: bounds [%d, %d)", ErrBadSectionOffset, h.OfsBounds, end)
		}
		m.Bounds = make([]Bounds, h.NumFrames)
		if err := readSection(data, h.OfsBounds, m.Bounds); err != nil {
			return nil, fmt.Errorf("reading bounds: %w", err)
		}
	}

	return m, nil
}

// resolveAttrs returns the vertex attributes of a file. Files written with a
// zero flags word are identified by their stride alone.
func resolveAttrs(flags, size uint32) (uint32, error) {
	if flags != 0 {
		if VertexSize(flags) != size {
			return 0, fmt.Errorf("%w: flags 0x%x imply %d, header says %d", ErrBadVertexSize, flags, VertexSize(flags), size)
		}
		return flags, nil
	}
	for _, attrs := range []uint32{BaseAttrs, BaseAttrs | AttrBones, BaseAttrs | AttrColor, BaseAttrs | AttrBones | AttrColor} {
		if VertexSize(attrs) == size {
			return attrs, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrBadVertexSize, size)
}

// readSection decodes a run of fixed-size records at ofs into out.
func readSection(data []byte, ofs uint32, out any) error {
	if binary.Size(out) == 0 {
		return nil
	}
	return binary.Read(bytes.NewReader(data[ofs:]), binary.LittleEndian, out)
}

// readVertices decodes the interleaved vertex array.
func (m *LMesh) readVertices(data []byte) {
	stride := int(m.Header.VertexSize)
	f32 := func(b []byte) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	for i := range m.Vertices {
		b := data[i*stride : (i+1)*stride]
		v := &m.Vertices[i]
		for j := 0; j < 3; j++ {
			v.Position[j] = f32(b[j*4:])
			v.Normal[j] = f32(b[12+j*4:])
		}
		v.TexCoord[0], v.TexCoord[1] = f32(b[24:]), f32(b[28:])
		for j := 0; j < 4; j++ {
			v.Tangent[j] = f32(b[32+j*4:])
		}
		ofs := 48
		if m.Attrs&AttrBones != 0 {
			copy(v.BlendIndexes[:], b[ofs:ofs+4])
			copy(v.BlendWeights[:], b[ofs+4:ofs+8])
			ofs += 8
		}
		if m.Attrs&AttrColor != 0 {
			copy(v.Color[:], b[ofs:ofs+4])
		}
	}
}

// String returns the string table entry at offset.
func (m *LMesh) String(offset uint32) string {
	return encoding.CString(m.Text, offset)
}

// FrameChannels returns the packed channel values of one frame.
func (m *LMesh) FrameChannels(frame int) []uint16 {
	n := int(m.Header.NumFrameChannels)
	return m.Frames[frame*n : (frame+1)*n]
}

// DecodeFrame dequantizes one frame into 10 channel values per pose, in
// pose order. Inactive channels take their pose's channel offset.
func (m *LMesh) DecodeFrame(frame int) [][NumChannels]float32 {
	packed := m.FrameChannels(frame)
	out := make([][NumChannels]float32, len(m.Poses))
	for i, p := range m.Poses {
		for c := 0; c < NumChannels; c++ {
			out[i][c] = p.ChannelOffset[c]
			if p.Mask&(1<<c) != 0 {
				out[i][c] += float32(packed[0]) * p.ChannelScale[c]
				packed = packed[1:]
			}
		}
	}
	return out
}

// ParseLMeshFile parses a model file from disk.
func ParseLMeshFile(path string) (*LMesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseLMesh(data)
}
