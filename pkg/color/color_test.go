package color_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/model"
)

func TestEnableDisable(t *testing.T) {
	color.Enable()
	assert.True(t, color.Enabled())
	color.Disable()
	assert.False(t, color.Enabled())
}

func TestFormattersEnabled(t *testing.T) {
	color.Enable()
	defer color.Disable()

	assert.Equal(t, color.Green+"ok"+color.Reset, color.Success("ok"))
	assert.Equal(t, color.Red+"bad"+color.Reset, color.Error("bad"))
	assert.Equal(t, color.Red+"bad 3"+color.Reset, color.Errorf("bad %d", 3))
	assert.Equal(t, color.Yellow+"careful"+color.Reset, color.Warning("careful"))
	assert.Equal(t, color.Cyan+":app:jar"+color.Reset, color.TaskID(":app:jar"))
	assert.Equal(t, color.Bold+"Title"+color.Reset, color.Header("Title"))
}

func TestFormattersDisabled(t *testing.T) {
	color.Disable()

	assert.Equal(t, "ok", color.Success("ok"))
	assert.Equal(t, "UP-TO-DATE", color.Outcome(model.OutcomeUpToDate))
	assert.Equal(t, "EXECUTED", color.Outcome(model.OutcomeExecuted))
	assert.Equal(t, "FAILED", color.Outcome(model.OutcomeFailed))
	assert.Equal(t, "+", color.Change("added"))
	assert.Equal(t, "-", color.Change("removed"))
	assert.Equal(t, "~", color.Change("modified"))
	assert.Equal(t, "?", color.Change("renamed"))
}
