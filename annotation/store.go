package annotation

// Store is the ordered collection of annotations of one document. Order
// is insertion order, which is also the stacking order on a page. Store
// is not safe for concurrent use.
type Store struct {
	items []Annotation
}

func NewStore() *Store { return &Store{} }

// NextID is 1 for an empty store, otherwise the largest id plus one. Ids
// are never reused while the annotation holding them exists.
func (s *Store) NextID() int {
	max := 0
	for _, a := range s.items {
		if a.ID > max {
			max = a.ID
		}
	}
	return max + 1
}

// Create appends a new annotation and returns it with its id.
func (s *Store) Create(page int, x, y float64, body Body) (Annotation, error) {
	a := Annotation{ID: s.NextID(), Page: page, X: x, Y: y, Body: body}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	a = a.clone()
	s.items = append(s.items, a)
	return a.clone(), nil
}

// Insert appends drafts in order, allocating consecutive ids. Either every
// draft is inserted or, when one fails validation, none is.
func (s *Store) Insert(drafts ...Annotation) ([]Annotation, error) {
	for _, d := range drafts {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	id := s.NextID()
	out := make([]Annotation, 0, len(drafts))
	for _, d := range drafts {
		d = d.clone()
		d.ID = id
		id++
		s.items = append(s.items, d)
		out = append(out, d.clone())
	}
	return out, nil
}

// Update applies p to the annotation with id. An unknown id is a no-op;
// late callbacks may target annotations that were already removed.
func (s *Store) Update(id int, p Patch) error {
	i := s.index(id)
	if i < 0 {
		return nil
	}
	next, err := p.apply(s.items[i])
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.items[i] = next
	return nil
}

// Remove deletes the annotation with id and reports whether it existed.
func (s *Store) Remove(id int) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Store) Get(id int) (Annotation, bool) {
	i := s.index(id)
	if i < 0 {
		return Annotation{}, false
	}
	return s.items[i].clone(), true
}

// ListByPage returns the annotations of page in stacking order.
func (s *Store) ListByPage(page int) []Annotation {
	var out []Annotation
	for _, a := range s.items {
		if a.Page == page {
			out = append(out, a.clone())
		}
	}
	return out
}

// All returns every annotation in store order.
func (s *Store) All() []Annotation {
	out := make([]Annotation, len(s.items))
	for i, a := range s.items {
		out[i] = a.clone()
	}
	return out
}

func (s *Store) Len() int { return len(s.items) }

func (s *Store) Reset() { s.items = nil }

func (s *Store) index(id int) int {
	for i, a := range s.items {
		if a.ID == id {
			return i
		}
	}
	return -1
}
