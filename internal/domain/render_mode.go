package domain

// RenderKind tells the presentation layer what to draw
type RenderKind string

const (
	RenderLoading RenderKind = "loading"
	RenderCached  RenderKind = "cached"
	RenderLocal   RenderKind = "local"
	RenderDefault RenderKind = "default"
)

// RenderMode is the resolved output of a coordinator.
// Path is set for cached files, Asset for local sources and Fallback for
// the default source.
type RenderMode struct {
	Kind     RenderKind  `json:"kind"`
	Path     string      `json:"path,omitempty"`
	Asset    string      `json:"asset,omitempty"`
	Fallback *RenderMode `json:"fallback,omitempty"`
}

// Leaf follows default-source fallbacks down to the mode actually drawn
func (m RenderMode) Leaf() RenderMode {
	for m.Kind == RenderDefault && m.Fallback != nil {
		m = *m.Fallback
	}
	return m
}
