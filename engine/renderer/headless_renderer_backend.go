package renderer

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/chewxy/math32"
)

// maxRaySteps bounds the samples taken along one volume ray.
const maxRaySteps = 2048

type headlessRendererBackendImpl struct {
	mu *sync.Mutex

	width, height int
	target        *image.RGBA

	// per-frame scratch
	color [][3]float32
	depth []float32
}

type headlessVolume struct {
	vol *model.Volume
	lut []byte
}

func (h *headlessVolume) Release() { h.vol, h.lut = nil, nil }

type headlessMesh struct {
	vertices []model.GPUVertex
	indices  []uint32
}

func (h *headlessMesh) Release() { h.vertices, h.indices = nil, nil }

type headlessSlice struct {
	vol *model.Volume
}

func (h *headlessSlice) Release() { h.vol = nil }

var _ RendererBackend = &headlessRendererBackendImpl{}

func newHeadlessRendererBackend() RendererBackend {
	return &headlessRendererBackendImpl{mu: &sync.Mutex{}}
}

func (b *headlessRendererBackendImpl) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("headless target needs a positive size")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	b.target = image.NewRGBA(image.Rect(0, 0, width, height))
	b.color = make([][3]float32, width*height)
	b.depth = make([]float32, width*height)
	return nil
}

func (b *headlessRendererBackendImpl) UploadVolume(_ string, vol *model.Volume, lut []byte) (gpuResource, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	if len(lut) != LUTSize*4 {
		return nil, errors.New("transfer function table has the wrong size")
	}
	return &headlessVolume{vol: vol, lut: lut}, nil
}

func (b *headlessRendererBackendImpl) UploadMesh(_ string, mesh *model.Mesh) (gpuResource, error) {
	if mesh == nil || mesh.TriangleCount() == 0 {
		return nil, errors.New("mesh has no triangles")
	}
	return &headlessMesh{vertices: mesh.Vertices(), indices: mesh.Indices}, nil
}

func (b *headlessRendererBackendImpl) UploadSlice(_ string, vol *model.Volume) (gpuResource, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	return &headlessSlice{vol: vol}, nil
}

func (b *headlessRendererBackendImpl) Draw(f *frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target == nil {
		return errors.New("headless target not configured")
	}

	inf := math32.Inf(1)
	for i := range b.color {
		b.color[i] = f.background
		b.depth[i] = inf
	}

	vp := f.camera.ViewProj[:]
	view := f.camera.Direction
	for _, m := range f.meshes {
		if res, ok := m.resource.(*headlessMesh); ok {
			b.drawMesh(vp, view, res, m.params)
		}
	}

	inv := f.camera.InverseViewProj[:]
	for _, v := range f.volumes {
		if res, ok := v.resource.(*headlessVolume); ok && res.vol != nil {
			b.eachRay(inv, func(i int, origin, dir [3]float32) {
				b.color[i] = marchVolume(res, v.params, origin, dir, b.color[i])
			})
		}
	}
	for _, s := range f.slices {
		if res, ok := s.resource.(*headlessSlice); ok && res.vol != nil {
			b.eachRay(inv, func(i int, origin, dir [3]float32) {
				if gray, hit := reslice(res.vol, s.params, origin, dir); hit {
					b.color[i] = [3]float32{gray, gray, gray}
				}
			})
		}
	}

	for y := range b.height {
		for x := range b.width {
			c := b.color[y*b.width+x]
			b.target.SetRGBA(x, y, color.RGBA{R: toByte(c[0]), G: toByte(c[1]), B: toByte(c[2]), A: 255})
		}
	}
	return nil
}

func (b *headlessRendererBackendImpl) Capture() (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target == nil {
		return nil, errors.New("headless target not configured")
	}
	out := image.NewRGBA(b.target.Rect)
	copy(out.Pix, b.target.Pix)
	return out, nil
}

func (b *headlessRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target, b.color, b.depth = nil, nil, nil
}

// eachRay calls fn with the world-space ray through the center of every pixel.
func (b *headlessRendererBackendImpl) eachRay(inv []float32, fn func(i int, origin, dir [3]float32)) {
	for y := range b.height {
		ndcY := 1 - (float32(y)+0.5)/float32(b.height)*2
		for x := range b.width {
			ndcX := (float32(x)+0.5)/float32(b.width)*2 - 1
			near, ok1 := unproject(inv, ndcX, ndcY, 0)
			far, ok2 := unproject(inv, ndcX, ndcY, 1)
			if !ok1 || !ok2 {
				continue
			}
			dir := common.Normalize3(common.Sub3(far, near))
			if dir == ([3]float32{}) {
				continue
			}
			fn(y*b.width+x, near, dir)
		}
	}
}

func (b *headlessRendererBackendImpl) drawMesh(vp []float32, view [3]float32, m *headlessMesh, params GPUMeshParams) {
	type screenVertex struct {
		x, y, z float32
		ok      bool
	}
	projected := make([]screenVertex, len(m.vertices))
	for i, v := range m.vertices {
		clip := common.TransformPoint(vp, v.Position)
		if clip[3] <= 0 {
			continue
		}
		projected[i] = screenVertex{
			x:  (clip[0]/clip[3]*0.5 + 0.5) * float32(b.width),
			y:  (0.5 - clip[1]/clip[3]*0.5) * float32(b.height),
			z:  clip[2] / clip[3],
			ok: true,
		}
	}

	for t := 0; t+2 < len(m.indices); t += 3 {
		ia, ib, ic := m.indices[t], m.indices[t+1], m.indices[t+2]
		if int(max(ia, ib, ic)) >= len(projected) {
			continue
		}
		a, bb, c := projected[ia], projected[ib], projected[ic]
		if !a.ok || !bb.ok || !c.ok {
			continue
		}
		area := edge(a.x, a.y, bb.x, bb.y, c.x, c.y)
		if area == 0 {
			continue
		}

		n := common.Normalize3(common.Add3(common.Add3(m.vertices[ia].Normal, m.vertices[ib].Normal), m.vertices[ic].Normal))
		shade := params.Light.Intensity(n, view)
		rgb := common.Scale3(params.Color, shade)

		minX := max(0, int(math32.Floor(min(a.x, bb.x, c.x))))
		maxX := min(b.width-1, int(math32.Ceil(max(a.x, bb.x, c.x))))
		minY := max(0, int(math32.Floor(min(a.y, bb.y, c.y))))
		maxY := min(b.height-1, int(math32.Ceil(max(a.y, bb.y, c.y))))
		for y := minY; y <= maxY; y++ {
			py := float32(y) + 0.5
			for x := minX; x <= maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(bb.x, bb.y, c.x, c.y, px, py) / area
				w1 := edge(c.x, c.y, a.x, a.y, px, py) / area
				w2 := edge(a.x, a.y, bb.x, bb.y, px, py) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				z := w0*a.z + w1*bb.z + w2*c.z
				i := y*b.width + x
				if z < 0 || z > 1 || z >= b.depth[i] {
					continue
				}
				b.depth[i] = z
				b.color[i] = blend(rgb, b.color[i], params.Opacity)
			}
		}
	}
}

// marchVolume composites the samples along one ray front to back over dst.
func marchVolume(res *headlessVolume, p GPUVolumeParams, origin, dir, dst [3]float32) [3]float32 {
	lo := p.Origin
	hi := [3]float32{
		lo[0] + (p.Dimensions[0]-1)*p.Spacing[0],
		lo[1] + (p.Dimensions[1]-1)*p.Spacing[1],
		lo[2] + (p.Dimensions[2]-1)*p.Spacing[2],
	}
	tNear, tFar, hit := intersectBox(origin, dir, lo, hi)
	if !hit {
		return dst
	}
	step := common.Coalesce(p.SampleDistance, DefaultSampleDistance)
	span := p.ScalarMax - p.ScalarMin
	gradientOn := p.GradientRange[1] > p.GradientRange[0]

	var acc [3]float32
	var alpha float32
	steps := 0
	for t := tNear; t <= tFar && steps < maxRaySteps; t += step {
		steps++
		pos := common.Add3(origin, common.Scale3(dir, t))
		g := gridCoord(pos, p.Origin, p.Spacing)
		v, ok := sampleNearest(res.vol, g)
		if !ok {
			continue
		}
		idx := 0
		if span > 0 {
			idx = int(common.Clamp((v-p.ScalarMin)/span, 0, 1) * (LUTSize - 1))
		}
		texel := res.lut[idx*4 : idx*4+4]
		a := float32(texel[3]) / 255
		if a == 0 {
			continue
		}
		rgb := [3]float32{float32(texel[0]) / 255, float32(texel[1]) / 255, float32(texel[2]) / 255}

		if gradientOn || p.Shade > 0 {
			grad := gradient(res.vol, g, p.Spacing)
			mag := common.Length3(grad)
			if gradientOn {
				a *= common.Clamp((mag-p.GradientRange[0])/(p.GradientRange[1]-p.GradientRange[0]), 0, 1)
			}
			if p.Shade > 0 && mag > 0 {
				rgb = common.Scale3(rgb, p.Light.Intensity(common.Scale3(grad, 1/mag), dir))
			}
		}
		// opacity is defined per unit distance
		a = 1 - math32.Pow(1-common.Clamp(a, 0, 1), step)

		w := (1 - alpha) * a
		acc = common.Add3(acc, common.Scale3(rgb, w))
		alpha += w
		if alpha > 0.99 {
			break
		}
	}
	return common.Add3(acc, common.Scale3(dst, 1-alpha))
}

// reslice returns the window/level gray of the voxel where the ray crosses the slice plane.
func reslice(vol *model.Volume, p GPUSliceParams, origin, dir [3]float32) (float32, bool) {
	axis := int(p.Axis)
	if axis > 2 || math32.Abs(dir[axis]) < 1e-6 {
		return 0, false
	}
	plane := p.Origin[axis] + p.Layer*p.Spacing[axis]
	t := (plane - origin[axis]) / dir[axis]
	pos := common.Add3(origin, common.Scale3(dir, t))
	g := gridCoord(pos, p.Origin, p.Spacing)
	g[axis] = p.Layer
	v, ok := sampleNearest(vol, g)
	if !ok {
		return 0, false
	}
	return windowLevel(v, p.Window, p.Level), true
}

// windowLevel maps a scalar to [0, 1] through a color window centered on level.
func windowLevel(v, window, level float32) float32 {
	if window <= 0 {
		if v >= level {
			return 1
		}
		return 0
	}
	return common.Clamp((v-(level-window/2))/window, 0, 1)
}

func gridCoord(pos, origin, spacing [3]float32) [3]float32 {
	var g [3]float32
	for i := range 3 {
		if spacing[i] != 0 {
			g[i] = (pos[i] - origin[i]) / spacing[i]
		}
	}
	return g
}

// sampleNearest reads the voxel nearest to grid coordinate g, relative to the extent minimum.
func sampleNearest(vol *model.Volume, g [3]float32) (float32, bool) {
	e := vol.Extent
	d := vol.Dimensions()
	var idx [3]int
	for i := range 3 {
		c := int(math32.Round(g[i]))
		if c < 0 || c >= d[i] {
			return 0, false
		}
		idx[i] = c + e[i*2]
	}
	return vol.Value(idx[0], idx[1], idx[2])
}

// gradient is the central-difference scalar gradient at g in scalar units per world unit.
func gradient(vol *model.Volume, g, spacing [3]float32) [3]float32 {
	var out [3]float32
	for i := range 3 {
		if spacing[i] == 0 {
			continue
		}
		a, b := g, g
		a[i]--
		b[i]++
		va, okA := sampleNearest(vol, a)
		vb, okB := sampleNearest(vol, b)
		if !okA || !okB {
			continue
		}
		out[i] = (vb - va) / (2 * spacing[i])
	}
	return out
}

// intersectBox clips a ray against an axis-aligned box, returning the entry and exit distances.
func intersectBox(origin, dir, lo, hi [3]float32) (float32, float32, bool) {
	tNear, tFar := math32.Inf(-1), math32.Inf(1)
	for i := range 3 {
		if dir[i] == 0 {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return 0, 0, false
			}
			continue
		}
		t0 := (lo[i] - origin[i]) / dir[i]
		t1 := (hi[i] - origin[i]) / dir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tNear = max(tNear, t0)
		tFar = min(tFar, t1)
	}
	if tFar < max(tNear, 0) {
		return 0, 0, false
	}
	return max(tNear, 0), tFar, true
}

func unproject(inv []float32, x, y, z float32) ([3]float32, bool) {
	p := common.TransformPoint(inv, [3]float32{x, y, z})
	if p[3] == 0 {
		return [3]float32{}, false
	}
	return [3]float32{p[0] / p[3], p[1] / p[3], p[2] / p[3]}, true
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func blend(src, dst [3]float32, alpha float32) [3]float32 {
	return common.Add3(common.Scale3(src, alpha), common.Scale3(dst, 1-alpha))
}

func checkVolume(vol *model.Volume) error {
	if vol == nil {
		return errors.New("nil volume")
	}
	d := vol.Dimensions()
	if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 || len(vol.Scalars) != d[0]*d[1]*d[2] {
		return errors.New("volume scalars do not match its extent")
	}
	return nil
}
