package catalog

// Projection groups projected columns by kind. Scanned rows carry each kind
// in its own section, in projection order; Ordinals[i] is the position of
// Cols[i] inside its section.
type Projection struct {
	Cols     []*ColDef
	Ordinals []int
	counts   [KindMeasure + 1]int
}

func NewProjection(cols []*ColDef) *Projection {
	p := &Projection{
		Cols:     cols,
		Ordinals: make([]int, len(cols)),
	}
	for i, def := range cols {
		p.Ordinals[i] = p.counts[def.Kind]
		p.counts[def.Kind]++
	}
	return p
}

func (p *Projection) Count(kind ColKind) int { return p.counts[kind] }
