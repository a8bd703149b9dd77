package visualization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateClampsIndex(t *testing.T) {
	limits := Limits{10, 20, 30}

	tests := []struct {
		name string
		ev   UserEvent
		want ViewerState
	}{
		{"Axial", UserEvent{View: Axial, Index: 4}, ViewerState{Axial: 4}},
		{"AxialTooHigh", UserEvent{View: Axial, Index: 10}, ViewerState{Axial: 9}},
		{"CoronalNegative", UserEvent{View: Coronal, Index: -3}, ViewerState{}},
		{"SagittalLast", UserEvent{View: Sagittal, Index: 29}, ViewerState{Sagittal: 29}},
		{"UnknownView", UserEvent{View: View(7), Index: 3}, ViewerState{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Update(limits, ViewerState{}, tt.ev)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestUpdateRedrawsAllPanels verifies every interaction redraws all views
func TestUpdateRedrawsAllPanels(t *testing.T) {
	limits := Limits{10, 20, 30}
	state := ViewerState{Axial: 1, Coronal: 2, Sagittal: 3}

	next, cmd := Update(limits, state, UserEvent{View: Coronal, Index: 15})
	assert.Equal(t, ViewerState{Axial: 1, Coronal: 15, Sagittal: 3}, next)
	assert.Equal(t, [3]PanelRequest{
		{View: Axial, Index: 1},
		{View: Coronal, Index: 15},
		{View: Sagittal, Index: 3},
	}, cmd.Panels)

	// The input state is a value and stays untouched
	assert.Equal(t, 2, state.Coronal)
}

// TestUpdateClampsIncomingState verifies an out of range state is repaired
func TestUpdateClampsIncomingState(t *testing.T) {
	limits := Limits{5, 5, 5}
	next, _ := Update(limits, ViewerState{Axial: 50, Coronal: -1, Sagittal: 2}, UserEvent{View: -1})
	assert.Equal(t, ViewerState{Axial: 4, Coronal: 0, Sagittal: 2}, next)
}

func TestParseView(t *testing.T) {
	for _, v := range Views {
		got, err := ParseView(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ParseView("oblique")
	assert.Error(t, err)
}
