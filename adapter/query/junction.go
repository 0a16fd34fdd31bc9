package query

// Normalizer rewrites criterion values before they enter a junction.
type Normalizer func(value any) any

// Junction is a criterion grouping other criteria.
type Junction interface {
	Criterion
	// Criteria returns the grouped criteria in insertion order.
	Criteria() []Criterion
	IsEmpty() bool
	add(cs ...Criterion)
	setNormalizer(n Normalizer)
}

type junction struct {
	criteria []Criterion
	norm     Normalizer
}

func (j *junction) criterion() {}

func (j *junction) Criteria() []Criterion { return j.criteria }

func (j *junction) IsEmpty() bool { return len(j.criteria) == 0 }

func (j *junction) setNormalizer(n Normalizer) {
	j.norm = n
	for _, c := range j.criteria {
		normalize(c, n)
	}
}

func (j *junction) add(cs ...Criterion) {
	for _, c := range cs {
		if c == nil {
			continue
		}
		normalize(c, j.norm)
		j.criteria = append(j.criteria, c)
	}
}

// normalize rewrites the values of c, and of every criterion below it when
// c is a junction. Nested junctions inherit n.
func normalize(c Criterion, n Normalizer) {
	if n == nil {
		return
	}
	switch t := c.(type) {
	case *Equals:
		t.Value = n(t.Value)
	case *NotEquals:
		t.Value = n(t.Value)
	case *In:
		for i, v := range t.Values {
			t.Values[i] = n(v)
		}
	case Junction:
		t.setNormalizer(n)
	}
}

// Conjunction matches when every criterion matches. An empty conjunction
// matches everything.
type Conjunction struct{ junction }

// Disjunction matches when any criterion matches. An empty disjunction
// matches nothing.
type Disjunction struct{ junction }

// Negation matches when not every criterion matches.
type Negation struct{ junction }

// And returns a conjunction of cs.
func And(cs ...Criterion) *Conjunction {
	j := &Conjunction{}
	j.add(cs...)
	return j
}

// Or returns a disjunction of cs.
func Or(cs ...Criterion) *Disjunction {
	j := &Disjunction{}
	j.add(cs...)
	return j
}

// Not returns a negation of cs.
func Not(cs ...Criterion) *Negation {
	j := &Negation{}
	j.add(cs...)
	return j
}

// Add appends cs and returns the conjunction.
func (j *Conjunction) Add(cs ...Criterion) *Conjunction {
	j.add(cs...)
	return j
}

// Add appends cs and returns the disjunction.
func (j *Disjunction) Add(cs ...Criterion) *Disjunction {
	j.add(cs...)
	return j
}

// Add appends cs and returns the negation.
func (j *Negation) Add(cs ...Criterion) *Negation {
	j.add(cs...)
	return j
}
