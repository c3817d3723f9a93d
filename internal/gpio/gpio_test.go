package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

func TestServoPulse(t *testing.T) {
	tests := []struct {
		pos  int
		want time.Duration
	}{
		{0, 1000 * time.Microsecond},
		{10, 1100 * time.Microsecond},
		{50, 1500 * time.Microsecond},
		{100, 2000 * time.Microsecond},
	}
	for _, tt := range tests {
		got, err := ServoPulse(tt.pos, DefaultServoMinPulse, DefaultServoMaxPulse)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "pos %d", tt.pos)
	}
}

func TestServoPulseOutOfRange(t *testing.T) {
	_, err := ServoPulse(-1, DefaultServoMinPulse, DefaultServoMaxPulse)
	assert.Error(t, err)
	_, err = ServoPulse(101, DefaultServoMinPulse, DefaultServoMaxPulse)
	assert.Error(t, err)
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.calls = append(s.calls, d)
}

func TestExecuteOpenRamp(t *testing.T) {
	c := logic.NewController(logic.DefaultConfig())
	_, plan, _ := c.Step(c.Initial(), logic.Sample{Humidity: 50, TempC: 30, TempF: 86})

	act := NewFakeActuator()
	rec := &sleepRecorder{}
	out, err := Execute(act, plan, rec.sleep)
	require.NoError(t, err)
	assert.Equal(t, Outcome{FanSet: true, Fan: true}, out)

	require.Len(t, act.Positions, 91)
	assert.Equal(t, 10, act.Positions[0])
	assert.Equal(t, 100, act.Positions[90])
	assert.Equal(t, []bool{true}, act.Fans)
	assert.Equal(t, "fan on", act.Calls[len(act.Calls)-1], "fan switches after the ramp")

	require.Len(t, rec.calls, 91)
	for _, d := range rec.calls {
		assert.Equal(t, 15*time.Millisecond, d)
	}
}

func TestExecuteCloseRamp(t *testing.T) {
	c := logic.NewController(logic.DefaultConfig())
	open := logic.State{HatchOpen: true, HatchPosition: 100, FanOn: true}
	_, plan, _ := c.Step(open, logic.Sample{Humidity: 50, TempC: 20, TempF: 68})

	act := NewFakeActuator()
	out, err := Execute(act, plan, func(time.Duration) {})
	require.NoError(t, err)
	assert.Equal(t, Outcome{FanSet: true, Fan: false}, out)

	assert.Equal(t, 100, act.Positions[0])
	assert.Equal(t, 10, act.Position())
	assert.Equal(t, []bool{false}, act.Fans)
}

func TestExecuteEmptyPlan(t *testing.T) {
	act := NewFakeActuator()
	rec := &sleepRecorder{}
	out, err := Execute(act, logic.Plan{}, rec.sleep)
	require.NoError(t, err)
	assert.False(t, out.FanSet)
	assert.Empty(t, act.Calls)
	assert.Empty(t, rec.calls)
}

func TestExecuteContinuesAfterErrors(t *testing.T) {
	c := logic.NewController(logic.DefaultConfig())
	_, plan, _ := c.Step(c.Initial(), logic.Sample{Humidity: 50, TempC: 30, TempF: 86})

	act := NewFakeActuator()
	act.PositionError = errors.New("servo stalled")
	rec := &sleepRecorder{}

	out, err := Execute(act, plan, rec.sleep)
	require.Error(t, err)
	assert.ErrorIs(t, err, act.PositionError)
	assert.True(t, out.FanSet)
	assert.Contains(t, err.Error(), "91 of 92 actions failed")
	assert.Equal(t, []bool{true}, act.Fans, "fan still commanded")
	assert.Len(t, rec.calls, 91, "settle waits still observed")
}

func TestExecuteFanFailureNotReported(t *testing.T) {
	c := logic.NewController(logic.DefaultConfig())
	_, plan, _ := c.Step(c.Initial(), logic.Sample{Humidity: 50, TempC: 30, TempF: 86})

	act := NewFakeActuator()
	act.FanError = errors.New("relay open")

	out, err := Execute(act, plan, func(time.Duration) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 92 actions failed")
	assert.False(t, out.FanSet, "failed fan action must not count as applied")
	assert.Equal(t, 100, act.Position())
}
