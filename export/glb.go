package export

import (
	"bytes"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Scene collects chunk meshes into one glTF document, one node per chunk.
type Scene struct {
	doc      *gltf.Document
	color    ColorFunc
	material int
}

func NewScene(color ColorFunc) *Scene {
	if color == nil {
		color = BlockColor
	}
	doc := gltf.NewDocument()
	doc.Asset.Generator = "voxcore"
	doc.Materials = []*gltf.Material{{
		Name: "voxel",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(1),
		},
		AlphaMode: gltf.AlphaOpaque,
	}}
	return &Scene{doc: doc, color: color}
}

// Add places m at offset under name. An empty mesh becomes a node with no
// geometry.
func (s *Scene) Add(name string, m *Mesh, offset mgl32.Vec3) {
	node := &gltf.Node{Name: name}
	node.Translation = [3]float64{float64(offset[0]), float64(offset[1]), float64(offset[2])}
	if m != nil && len(m.Indices) > 0 {
		node.Mesh = gltf.Index(s.addMesh(name, m))
	}
	s.doc.Nodes = append(s.doc.Nodes, node)
	s.doc.Scenes[0].Nodes = append(s.doc.Scenes[0].Nodes, len(s.doc.Nodes)-1)
}

func (s *Scene) addMesh(name string, m *Mesh) int {
	positions := make([][3]float32, len(m.Vertices))
	normals := make([][3]float32, len(m.Vertices))
	colors := make([][4]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = v.Pos
		normals[i] = v.Normal
		colors[i] = s.color(v.Block)
		if colors[i][3] < 1 {
			s.doc.Materials[s.material].AlphaMode = gltf.AlphaBlend
		}
	}
	prim := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION: modeler.WritePosition(s.doc, positions),
			gltf.NORMAL:   modeler.WriteNormal(s.doc, normals),
			gltf.COLOR_0:  modeler.WriteColor(s.doc, colors),
		},
		Indices:  gltf.Index(modeler.WriteIndices(s.doc, m.Indices)),
		Material: gltf.Index(s.material),
	}
	s.doc.Meshes = append(s.doc.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}})
	return len(s.doc.Meshes) - 1
}

func (s *Scene) Document() *gltf.Document { return s.doc }

func (s *Scene) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	enc := gltf.NewEncoder(cw)
	enc.AsBinary = true
	err := enc.Encode(s.doc)
	return cw.n, err
}

func (s *Scene) Bytes() ([]byte, error) {
	var out bytes.Buffer
	if _, err := s.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// GLB writes a single mesh as a binary glTF file.
func GLB(m *Mesh, color ColorFunc) ([]byte, error) {
	s := NewScene(color)
	s.Add("chunk", m, mgl32.Vec3{})
	return s.Bytes()
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
