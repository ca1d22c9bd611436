package patch

// BlockMap reorders a row-major plane so that every square patch occupies a
// contiguous run. Patches are laid out in row-major patch order and pixels
// inside a patch are row-major too. Pixels outside the cropped area follow
// after all patches.
type BlockMap struct {
	width, height int // plane dimensions
	size          int // patch side

	allocWidth, allocHeight int // cropped dimensions (multiples of size)
	marginWidth             int // width of the right margin
	blockArea               int // size * size
	totalAllocArea          int // allocWidth * allocHeight
	blockRowArea            int // area of one row of patches
}

func NewBlockMap(w, h, size int) BlockMap {
	var m = BlockMap{
		width:  w,
		height: h,
		size:   size,
	}
	countX, countY := w/size, h/size
	m.allocWidth, m.allocHeight = countX*size, countY*size
	m.marginWidth = w - m.allocWidth
	m.blockArea = size * size
	m.totalAllocArea = m.allocWidth * m.allocHeight
	m.blockRowArea = m.allocWidth * size
	return m
}

// Cropped returns the dimensions covered by whole patches.
func (m BlockMap) Cropped() (w, h int) { return m.allocWidth, m.allocHeight }

// Count returns the number of whole patches.
func (m BlockMap) Count() int {
	if m.blockArea == 0 {
		return 0
	}
	return m.totalAllocArea / m.blockArea
}

// Dim returns the number of pixels in one patch.
func (m BlockMap) Dim() int { return m.blockArea }

// Gather copies the patches of data (row-major, width x height) into a
// Count() x Dim() row-major buffer.
func (m BlockMap) Gather(data []float64) []float64 {
	out := make([]float64, m.totalAllocArea)
	for y := range m.allocHeight {
		for x := range m.allocWidth {
			out[m.get(y*m.width+x)] = data[y*m.width+x]
		}
	}
	return out
}

// Scatter writes patch rows back into a cropped row-major plane
// (allocWidth x allocHeight).
func (m BlockMap) Scatter(patches []float64) []float64 {
	out := make([]float64, m.totalAllocArea)
	for y := range m.allocHeight {
		for x := range m.allocWidth {
			out[y*m.allocWidth+x] = patches[m.get(y*m.width+x)]
		}
	}
	return out
}

func (m BlockMap) get(i int) int {
	x, y := i%m.width, i/m.width
	if m.allocHeight <= y {
		// bottom margin
		return i
	}
	if mx := x - m.allocWidth; mx >= 0 {
		// right margin
		return m.totalAllocArea +
			y*m.marginWidth + mx
	}
	// in block
	brow, bcol := y/m.size, x/m.size
	start := brow*m.blockRowArea + bcol*m.blockArea
	bx, by := x%m.size, y%m.size
	return start + by*m.size + bx
}
