package monitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_JSON(t *testing.T) {
	for _, st := range []State{Disarmed, ArmedWaiting, ArmedWarningShown} {
		data, err := json.Marshal(Snapshot{State: st})
		require.NoError(t, err)

		var got Snapshot
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, st, got.State)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("SLEEPING")))
}
