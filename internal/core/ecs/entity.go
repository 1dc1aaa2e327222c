package ecs

// EntityID packs a 24-bit index in the low bits and a 7-bit generation above
// it, so every live id is a non-negative int32. Generation increments on
// destroy to invalidate stale refs.
type EntityID int32

const (
	indexBits      = 24
	indexMask      = 1<<indexBits - 1
	generationMask = 0x7f
)

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID((generation&generationMask)<<indexBits | index&indexMask)
}

func (id EntityID) Index() uint32      { return uint32(id) & indexMask }
func (id EntityID) Generation() uint32 { return uint32(id) >> indexBits & generationMask }

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	alive       int
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

func (p *EntityPool) Create() EntityID {
	p.alive++
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
	}
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) Alive(id EntityID) bool {
	if id < 0 {
		return false
	}
	idx := id.Index()
	if idx >= p.nextIndex {
		return false
	}
	return p.generations[idx]&generationMask == id.Generation()
}

func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return // already destroyed (stale reference)
	}
	idx := id.Index()
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
	p.alive--
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int { return p.alive }
