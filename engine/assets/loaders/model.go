package loaders

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// objKey identifies one unique position/uv/normal combination of a face corner.
type objKey struct {
	v, vt, vn int
}

type objGroup struct {
	name     string
	lookup   map[objKey]uint32
	vertices []math.Vertex3D
	indices  []uint32
	normals  bool
}

func newOBJGroup(name string) *objGroup {
	return &objGroup{name: name, lookup: map[objKey]uint32{}, normals: true}
}

/**
 * @brief Reads a Wavefront OBJ file. Every "o" or "g" statement starts a new
 * mesh part; polygons are fan-triangulated. Materials are ignored.
 */
func loadOBJ(path string) ([]metadata.MeshData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		positions []math.Vec3
		uvs       []math.Vec2
		normals   []math.Vec3
		groups    []*objGroup
	)
	current := newOBJGroup("default")

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			positions = append(positions, math.NewVec3(f[0], f[1], f[2]))
		case "vt":
			f, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			// OBJ puts v=0 at the bottom of the image.
			uvs = append(uvs, math.NewVec2(f[0], 1-f[1]))
		case "vn":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			normals = append(normals, math.NewVec3(f[0], f[1], f[2]))
		case "o", "g":
			if len(current.indices) > 0 {
				groups = append(groups, current)
			}
			name := "unnamed"
			if len(fields) > 1 {
				name = fields[1]
			}
			current = newOBJGroup(name)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%s:%d: face needs at least 3 corners", path, line)
			}
			corners := make([]uint32, 0, len(fields)-1)
			for _, c := range fields[1:] {
				key, err := parseCorner(c, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", path, line, err)
				}
				corners = append(corners, current.vertex(key, positions, uvs, normals))
			}
			for i := 1; i+1 < len(corners); i++ {
				current.indices = append(current.indices, corners[0], corners[i], corners[i+1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(current.indices) > 0 {
		groups = append(groups, current)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("'%s' contains no faces", path)
	}

	out := make([]metadata.MeshData, 0, len(groups))
	for _, g := range groups {
		if !g.normals {
			math.GenerateNormals(g.vertices, g.indices)
		}
		out = append(out, metadata.MeshData{Vertices: g.vertices, Indices: g.indices})
	}
	return out, nil
}

func (g *objGroup) vertex(key objKey, positions []math.Vec3, uvs []math.Vec2, normals []math.Vec3) uint32 {
	if idx, ok := g.lookup[key]; ok {
		return idx
	}
	var vert math.Vertex3D
	vert.Position = positions[key.v]
	if key.vt >= 0 {
		vert.Texcoord = uvs[key.vt]
	}
	if key.vn >= 0 {
		vert.Normal = normals[key.vn]
	} else {
		g.normals = false
	}
	idx := uint32(len(g.vertices))
	g.vertices = append(g.vertices, vert)
	g.lookup[key] = idx
	return idx
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseCorner reads "v", "v/vt", "v//vn" or "v/vt/vn". Indices are 1-based and
// negative values count back from the end of the list.
func parseCorner(s string, nv, nvt, nvn int) (objKey, error) {
	parts := strings.Split(s, "/")
	key := objKey{v: -1, vt: -1, vn: -1}
	counts := [3]int{nv, nvt, nvn}
	dst := [3]*int{&key.v, &key.vt, &key.vn}

	for i, p := range parts {
		if i > 2 {
			return key, fmt.Errorf("malformed face corner '%s'", s)
		}
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return key, fmt.Errorf("malformed face corner '%s': %w", s, err)
		}
		if n < 0 {
			n = counts[i] + n
		} else {
			n--
		}
		if n < 0 || n >= counts[i] {
			return key, fmt.Errorf("face corner '%s' references a missing element", s)
		}
		*dst[i] = n
	}
	if key.v < 0 {
		return key, fmt.Errorf("face corner '%s' has no position", s)
	}
	return key, nil
}
