package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{Pending, false},
		{Processing, false},
		{Completed, true},
		{Failed, true},
		{Cancelled, true},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.True(t, tt.status.IsValid())
		})
	}
}

func TestParse(t *testing.T) {
	st, err := Parse(" completed ")
	require.NoError(t, err)
	assert.Equal(t, Completed, st)

	_, err = Parse("settled")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestMapping_Map(t *testing.T) {
	m := Mapping{
		"succeeded":  Completed,
		"processing": Processing,
	}

	assert.Equal(t, Completed, m.Map("succeeded"))
	assert.Equal(t, Completed, m.Map("SUCCEEDED"))
	assert.Equal(t, Processing, m.Map(" processing "))
	assert.Equal(t, Unknown, m.Map("brand_new_state"))
	assert.Equal(t, Unknown, m.Map(""))
}

func TestMapping_Natives(t *testing.T) {
	m := Mapping{"b": Pending, "a": Failed}
	assert.Equal(t, []string{"a", "b"}, m.Natives())
}

func TestMapping_NilTable(t *testing.T) {
	var m Mapping
	assert.Equal(t, Unknown, m.Map("anything"))
	assert.Empty(t, m.Natives())
}
