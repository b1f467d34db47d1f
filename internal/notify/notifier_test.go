package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateChangedWritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	n := New(&buf)

	n.StateChanged(Event{State: "trigger1", Name: "Camera 4", Peak: 0.85})
	n.StateChanged(Event{State: "trigger2", Name: "Camera 7", Peak: 0.35})
	n.StateChanged(Event{State: "off", Peak: 0.02})

	assert.Equal(t, "Camera 4 on\nCamera 7 on\nall off\n", buf.String())
}
