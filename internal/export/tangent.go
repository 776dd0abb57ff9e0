package export

import "github.com/Faultbox/lmesh/pkg/math"

// GenerateTangents fills in each vertex's tangent and bitangent sign from
// triangle positions and texture coordinates. Tangents are orthogonalized
// against the vertex normal; vertices with no usable tangent get a zero one.
func GenerateTangents(m *Mesh) {
	bitangents := make([]math.Vec3, len(m.Vertices))
	for i := range m.Vertices {
		m.Vertices[i].Tangent = math.Vec3{}
	}

	for _, tri := range m.Triangles {
		v0, v1, v2 := &m.Vertices[tri[0]], &m.Vertices[tri[1]], &m.Vertices[tri[2]]
		dco1 := v1.Position.Sub(v0.Position)
		dco2 := v2.Position.Sub(v0.Position)
		duv1 := v1.UV.Sub(v0.UV)
		duv2 := v2.UV.Sub(v0.UV)

		tangent := dco2.Scale(duv1.Y).Sub(dco1.Scale(duv2.Y))
		bitangent := dco2.Scale(duv1.X).Sub(dco1.Scale(duv2.X))
		if dco2.Cross(dco1).Dot(bitangent.Cross(tangent)) < 0 {
			tangent = tangent.Neg()
			bitangent = bitangent.Neg()
		}

		for _, idx := range tri {
			m.Vertices[idx].Tangent = m.Vertices[idx].Tangent.Add(tangent)
			bitangents[idx] = bitangents[idx].Add(bitangent)
		}
	}

	for i := range m.Vertices {
		v := &m.Vertices[i]
		t := v.Tangent.Sub(v.Normal.Scale(v.Tangent.Dot(v.Normal)))
		v.Tangent = t.Normalize()
		if v.Normal.Cross(v.Tangent).Dot(bitangents[i]) < 0 {
			v.BitangentSign = -1
		} else {
			v.BitangentSign = 1
		}
	}
}
