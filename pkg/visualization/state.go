package visualization

import "fmt"

// View is one of the three orthogonal slice orientations
type View int

const (
	Axial View = iota
	Coronal
	Sagittal
)

// Views lists the views in panel order
var Views = [3]View{Axial, Coronal, Sagittal}

func (v View) String() string {
	switch v {
	case Axial:
		return "axial"
	case Coronal:
		return "coronal"
	case Sagittal:
		return "sagittal"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// ParseView converts a view name into a View
func ParseView(name string) (View, error) {
	for _, v := range Views {
		if v.String() == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown view %q", name)
}

func (v View) valid() bool {
	return v >= Axial && v <= Sagittal
}

// Limits holds the number of slices available in each view
type Limits [3]int

// ViewerState holds the selected slice of each view
type ViewerState struct {
	Axial    int `json:"axial"`
	Coronal  int `json:"coronal"`
	Sagittal int `json:"sagittal"`
}

// Index returns the selected slice of view v
func (s ViewerState) Index(v View) int {
	switch v {
	case Coronal:
		return s.Coronal
	case Sagittal:
		return s.Sagittal
	}
	return s.Axial
}

func (s ViewerState) with(v View, index int) ViewerState {
	switch v {
	case Axial:
		s.Axial = index
	case Coronal:
		s.Coronal = index
	case Sagittal:
		s.Sagittal = index
	}
	return s
}

// UserEvent moves the selector of one view
type UserEvent struct {
	View  View
	Index int
}

// PanelRequest names one panel to draw
type PanelRequest struct {
	View  View
	Index int
}

// RenderCommand lists the panels to redraw. Every interaction redraws all
// three views.
type RenderCommand struct {
	Panels [3]PanelRequest
}

// Update applies ev to state. Indexes are clamped into [0, limits[view]-1];
// events for unknown views leave the state unchanged. Update has no side
// effects, drawing is left to whoever executes the returned command.
func Update(limits Limits, state ViewerState, ev UserEvent) (ViewerState, RenderCommand) {
	next := clampState(limits, state)
	if ev.View.valid() {
		next = next.with(ev.View, clamp(ev.Index, limits[ev.View]))
	}

	var cmd RenderCommand
	for i, v := range Views {
		cmd.Panels[i] = PanelRequest{View: v, Index: next.Index(v)}
	}
	return next, cmd
}

func clampState(limits Limits, s ViewerState) ViewerState {
	for _, v := range Views {
		s = s.with(v, clamp(s.Index(v), limits[v]))
	}
	return s
}

// clamp restricts i to [0, n-1]
func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
