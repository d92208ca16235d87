package model

// Batch is a normalized page, split by entity type.
type Batch struct {
	Ratios      []Ratio
	Properties  []Property
	Assessments []Assessment
}

// Add appends an entity to the matching slice.
func (b *Batch) Add(e Entity) {
	switch v := e.(type) {
	case Ratio:
		b.Ratios = append(b.Ratios, v)
	case Property:
		b.Properties = append(b.Properties, v)
	case Assessment:
		b.Assessments = append(b.Assessments, v)
	}
}

// Len returns the total number of entities.
func (b Batch) Len() int {
	return len(b.Ratios) + len(b.Properties) + len(b.Assessments)
}

// Counts returns per-entity counts.
func (b Batch) Counts() Counts {
	return Counts{
		Ratios:      len(b.Ratios),
		Properties:  len(b.Properties),
		Assessments: len(b.Assessments),
	}
}

// Counts tallies entities by type.
type Counts struct {
	Ratios      int `json:"ratios"`
	Properties  int `json:"properties"`
	Assessments int `json:"assessments"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Ratios += other.Ratios
	c.Properties += other.Properties
	c.Assessments += other.Assessments
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	return c.Ratios + c.Properties + c.Assessments
}
