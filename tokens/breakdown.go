package tokens

// Layer is one named entry of a Breakdown.
type Layer struct {
	Name   string `json:"name"`
	Tokens int    `json:"tokens"`
}

// Breakdown is an ordered per-layer token count.
// The zero value is ready to use.
type Breakdown struct {
	layers []Layer
}

// Add appends a layer count. Adding an existing name accumulates into it.
func (b *Breakdown) Add(name string, n int) {
	for i := range b.layers {
		if b.layers[i].Name == name {
			b.layers[i].Tokens += n
			return
		}
	}
	b.layers = append(b.layers, Layer{Name: name, Tokens: n})
}

// Get returns the count recorded for a layer.
func (b *Breakdown) Get(name string) (int, bool) {
	for _, l := range b.layers {
		if l.Name == name {
			return l.Tokens, true
		}
	}
	return 0, false
}

// Layers returns a copy of the layers in insertion order.
func (b *Breakdown) Layers() []Layer {
	return append([]Layer(nil), b.layers...)
}

// Total returns the sum of all layers.
func (b *Breakdown) Total() int {
	total := 0
	for _, l := range b.layers {
		total += l.Tokens
	}
	return total
}

// Map returns the layers keyed by name with an added "total" entry.
func (b *Breakdown) Map() map[string]int {
	m := make(map[string]int, len(b.layers)+1)
	for _, l := range b.layers {
		m[l.Name] = l.Tokens
	}
	m["total"] = b.Total()
	return m
}

// Exceeds reports whether the total is above the given fraction of the
// context window.
func (b *Breakdown) Exceeds(fraction float64) bool {
	return float64(b.Total()) > fraction*ContextWindow
}
