package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	gomath "math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/lmesh/pkg/formats"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteTo emits the laid out model. It performs no layout decisions of its
// own, so the bytes written always match the header.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	put := func(section string, data any) error {
		if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("writing %s: %w", section, err)
		}
		return nil
	}

	if err := put("header", &m.Header); err != nil {
		return cw.n, err
	}
	if _, err := bw.Write(m.text); err != nil {
		return cw.n, fmt.Errorf("writing text: %w", err)
	}
	if err := put("meshes", m.records); err != nil {
		return cw.n, err
	}
	if err := m.writeVertices(bw); err != nil {
		return cw.n, err
	}
	if err := m.writeTriangles(bw); err != nil {
		return cw.n, err
	}
	if err := put("joints", m.joints); err != nil {
		return cw.n, err
	}
	if err := put("poses", m.poses); err != nil {
		return cw.n, err
	}
	if err := put("anims", m.anims); err != nil {
		return cw.n, err
	}
	if err := put("frames", m.skeleton.Frames); err != nil {
		return cw.n, err
	}
	if pad := align4(2*len(m.skeleton.Frames)) - 2*len(m.skeleton.Frames); pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return cw.n, fmt.Errorf("writing frames: %w", err)
		}
	}
	if err := put("bounds", m.bounds); err != nil {
		return cw.n, err
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func (m *Model) writeVertices(w io.Writer) error {
	stride := formats.VertexSize(m.attrs)
	buf := make([]byte, stride)
	le := binary.LittleEndian
	putf := func(ofs int, f float32) {
		le.PutUint32(buf[ofs:], gomath.Float32bits(f))
	}

	for _, mesh := range m.Meshes {
		for i := range mesh.Vertices {
			v := &mesh.Vertices[i]
			putf(0, v.Position.X)
			putf(4, v.Position.Y)
			putf(8, v.Position.Z)
			putf(12, v.Normal.X)
			putf(16, v.Normal.Y)
			putf(20, v.Normal.Z)
			putf(24, v.UV.X)
			putf(28, v.UV.Y)
			putf(32, v.Tangent.X)
			putf(36, v.Tangent.Y)
			putf(40, v.Tangent.Z)
			putf(44, v.BitangentSign)
			ofs := 48
			if m.attrs&formats.AttrBones != 0 {
				for j, bw := range v.Weights {
					buf[ofs+j] = bw.Bone
					buf[ofs+4+j] = bw.Weight
				}
				ofs += 8
			}
			if m.attrs&formats.AttrColor != 0 {
				c := White
				if v.HasColor {
					c = v.Color
				}
				copy(buf[ofs:], c[:])
			}
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("writing vertexes: %w", err)
			}
		}
	}
	return nil
}

func (m *Model) writeTriangles(w io.Writer) error {
	var buf [formats.TriangleSize]byte
	for _, mesh := range m.Meshes {
		base := uint32(mesh.FirstVertex)
		for _, tri := range mesh.Triangles {
			for j, idx := range tri {
				binary.LittleEndian.PutUint32(buf[j*4:], base+uint32(idx))
			}
			if _, err := w.Write(buf[:]); err != nil {
				return fmt.Errorf("writing triangles: %w", err)
			}
		}
	}
	return nil
}

// CheckDestination verifies that path names an .lmesh file.
func CheckDestination(path string) error {
	if path == "" {
		return &InputError{Op: "export", Err: ErrNoDestination}
	}
	if !strings.EqualFold(filepath.Ext(path), formats.Extension) {
		return inputErrorf("export", ErrBadExtension, "%s", path)
	}
	return nil
}

// WriteFile writes the model to path. A failed write may leave a partial
// file behind.
func WriteFile(path string, m *Model) error {
	if err := CheckDestination(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return &InputError{Op: "export", Err: fmt.Errorf("%w: %v", ErrUnwritable, err)}
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Export builds the model from in and writes it to path.
func Export(path string, in Input, opts Options) (*Report, error) {
	if err := CheckDestination(path); err != nil {
		return nil, err
	}
	model, report, err := BuildModel(in, opts)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, model); err != nil {
		return nil, err
	}
	return report, nil
}
