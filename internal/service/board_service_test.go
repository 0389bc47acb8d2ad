package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pino/internal/board"
	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/model"
	"pino/internal/protocol"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.BoardEvent
}

func (r *recordingPublisher) Publish(event *model.BoardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType
	}
	return types
}

type stubDeployer struct {
	calls int
	err   error
}

func (s *stubDeployer) Deploy(ctx context.Context, binary, firmware, port string) ([]byte, error) {
	s.calls++
	return []byte("upload output"), s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Comport: config.ComportSettings{Port: "/dev/ttyTEST0", BaudRate: 115200},
		PinMode: []config.PinModeSetting{
			{Pin: 13, Mode: "OUTPUT"},
			{Pin: 2, Mode: "INPUT_PULLUP"},
		},
		Experimental: config.ExperimentalConfig{
			Optuino: true,
			Pulse:   []config.PulseSetting{{Frequency: 5, Duration: 10}},
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config, timeout time.Duration) (*BoardService, *protocol.TestablePort, *recordingPublisher, *stubDeployer) {
	t.Helper()
	port := protocol.NewTestablePort()
	deployer := &stubDeployer{}
	c := comport.New().
		SetPort(cfg.Comport.Port).
		SetTimeout(timeout).
		WithDeployer(deployer).
		WithOpener(func(string, int) (protocol.Port, error) { return port, nil })

	s := NewBoardService(cfg, c, nil)
	events := &recordingPublisher{}
	s.SetEventPublisher(events)
	return s, port, events, deployer
}

func TestBoardService_Start(t *testing.T) {
	s, port, events, deployer := newTestService(t, testConfig(), 0)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Connected())
	assert.Zero(t, deployer.calls)

	// pin modes first, then the preloaded pulse slot
	assert.Equal(t, [][]byte{{0x02, 13}, {0x01, 2}, {0x06, 0, 5, 10}}, port.GetWrites())
	assert.Equal(t, []model.EventType{model.EventBoardConnected}, events.types())

	status := s.Status()
	assert.Equal(t, model.BoardStateConnected, status.State)
	assert.Equal(t, "/dev/ttyTEST0", status.Port)
	assert.True(t, status.PulseCapable)
	assert.Equal(t, []string{"0: Frequency - 5  Duration - 10"}, status.PulseSettings)
	assert.Equal(t, int64(3), status.FramesWritten)
	assert.NotNil(t, status.ConnectedAt)

	// starting again does nothing
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, port.GetWrites(), 3)
}

func TestBoardService_StartDeploys(t *testing.T) {
	cfg := testConfig()
	cfg.Comport.Deploy = true
	s, _, events, deployer := newTestService(t, cfg, 0)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, deployer.calls)
	assert.Equal(t, []model.EventType{model.EventBoardDeployed, model.EventBoardConnected}, events.types())
}

func TestBoardService_StartFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Comport.Deploy = true
	s, port, events, deployer := newTestService(t, cfg, 0)
	deployer.err = errors.New("exit status 1")

	err := s.Start(context.Background())
	require.ErrorIs(t, err, comport.ErrDeployFailure)
	assert.False(t, s.Connected())
	assert.Empty(t, port.GetWrites())

	status := s.Status()
	assert.Equal(t, model.BoardStateError, status.State)
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, []model.EventType{model.EventBoardError}, events.types())
}

func TestBoardService_StartBadPinMode(t *testing.T) {
	cfg := testConfig()
	cfg.PinMode = append(cfg.PinMode, config.PinModeSetting{Pin: 4, Mode: "PULSE"})
	s, port, _, _ := newTestService(t, cfg, 0)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, board.ErrUnsupportedMode)
	assert.False(t, s.Connected())
	assert.Empty(t, port.GetWrites())
	assert.True(t, port.IsClosed())
}

func TestBoardService_NotConnected(t *testing.T) {
	s, _, events, _ := newTestService(t, testConfig(), 0)

	record, err := s.DigitalWrite(context.Background(), 13, "HIGH")
	require.ErrorIs(t, err, board.ErrNotConnected)
	assert.Equal(t, model.OperationStatusFailed, record.Status)
	assert.Equal(t, []model.EventType{model.EventOperationFailed}, events.types())

	_, err = s.PulseState()
	require.ErrorIs(t, err, board.ErrNotConnected)

	cancel := s.CancelRead()
	assert.Equal(t, model.OperationStatusFailed, cancel.Status)
}

func TestBoardService_Writes(t *testing.T) {
	s, port, _, _ := newTestService(t, testConfig(), 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	before := len(port.GetWrites())

	record, err := s.SetPinMode(ctx, 9, "SERVO")
	require.NoError(t, err)
	assert.Equal(t, model.OperationSetPinMode, record.OperationType)
	assert.Equal(t, model.OperationStatusSuccess, record.Status)

	_, err = s.DigitalWrite(ctx, 13, "HIGH")
	require.NoError(t, err)
	_, err = s.MultipleDigitalWrite(ctx, []int{2, 3, 4}, []string{"LOW", "HIGH"})
	require.NoError(t, err)
	_, err = s.AnalogWrite(ctx, 5, 128)
	require.NoError(t, err)
	_, err = s.MultipleAnalogWrite(ctx, []int{5, 6}, []int{1, 2})
	require.NoError(t, err)
	_, err = s.ServoRotate(ctx, 9, 90)
	require.NoError(t, err)
	_, err = s.MultipleServoRotate(ctx, []int{9}, []int{180})
	require.NoError(t, err)

	assert.Equal(t, [][]byte{
		{0x03, 9},
		{0x11, 13},
		{0x10, 2}, {0x11, 3},
		{0x12, 5, 128},
		{0x12, 5, 1}, {0x12, 6, 2},
		{0x13, 9, 90},
		{0x13, 9, 180},
	}, port.GetWrites()[before:])
}

func TestBoardService_RejectsUnknownNames(t *testing.T) {
	s, port, _, _ := newTestService(t, testConfig(), 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	before := len(port.GetWrites())

	_, err := s.SetPinMode(ctx, 9, "ANALOG")
	require.ErrorIs(t, err, board.ErrUnsupportedMode)
	_, err = s.DigitalWrite(ctx, 13, "PULSE_ON")
	require.ErrorIs(t, err, board.ErrUnsupportedState)
	_, err = s.MultipleDigitalWrite(ctx, []int{1, 2}, []string{"HIGH", "MAYBE"})
	require.ErrorIs(t, err, board.ErrUnsupportedState)

	assert.Len(t, port.GetWrites(), before)
}

func TestBoardService_Reads(t *testing.T) {
	s, port, _, _ := newTestService(t, testConfig(), 50*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	port.Responder = func(frame []byte) []byte {
		switch frame[0] {
		case protocol.OpDigitalRead:
			return []byte{0x01}
		case protocol.OpAnalogRead:
			return []byte{0xff, 0x03}
		}
		return nil
	}

	record, err := s.DigitalRead(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, &model.DigitalReadResult{Pin: 7, State: "HIGH", High: true}, record.Result)

	record, err = s.AnalogRead(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, &model.AnalogReadResult{Pin: 0, Raw: []byte{0xff, 0x03}}, record.Result)

	port.Responder = nil
	record, err = s.DigitalRead(ctx, 7)
	require.NoError(t, err)
	assert.True(t, record.Result.(*model.DigitalReadResult).TimedOut)

	port.AddReadData([]byte("ready\n"))
	record, err = s.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"line": "ready\n", "timed_out": false}, record.Result)
}

func TestBoardService_Pulse(t *testing.T) {
	s, port, events, _ := newTestService(t, testConfig(), 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	_, err := s.SetPulseParams(ctx, 1, 20, 5)
	require.NoError(t, err)
	_, err = s.SetPulseParams(ctx, board.MaxPulseSettings, 1, 1)
	require.ErrorIs(t, err, board.ErrIndexOutOfRange)

	record, err := s.PulseOn(ctx, 13, 1)
	require.NoError(t, err)
	assert.True(t, record.Result.(*model.PulseState).Pulsing)

	_, err = s.PulseOn(ctx, 13, 0)
	require.NoError(t, err)

	state, err := s.PulseState()
	require.NoError(t, err)
	assert.Equal(t, []int{5, 20}, state.Frequency)
	assert.Equal(t, []int{10, 5}, state.Duration)

	_, err = s.PulseOff(ctx)
	require.NoError(t, err)

	writes := port.GetWrites()
	assert.Equal(t, [][]byte{{0x06, 1, 20, 5}, {0x14, 13, 1}, {0x15}}, writes[len(writes)-3:])
	assert.Contains(t, events.types(), model.EventPulseStarted)
	assert.Contains(t, events.types(), model.EventPulseStopped)
}

func TestBoardService_PulseDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Experimental.Optuino = false
	s, port, _, _ := newTestService(t, cfg, 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	before := len(port.GetWrites())

	_, err := s.SetPulseParams(ctx, 0, 1, 1)
	require.ErrorIs(t, err, ErrPulseDisabled)
	_, err = s.PulseOn(ctx, 13, 0)
	require.ErrorIs(t, err, ErrPulseDisabled)
	_, err = s.PulseOff(ctx)
	require.ErrorIs(t, err, ErrPulseDisabled)
	_, err = s.PulseState()
	require.ErrorIs(t, err, ErrPulseDisabled)

	// no preloaded slots either
	assert.Len(t, port.GetWrites(), before)
	assert.Equal(t, 2, before)
}

func TestBoardService_CancelRead(t *testing.T) {
	s, _, _, _ := newTestService(t, testConfig(), 0)
	require.NoError(t, s.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := s.ReadLine(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	record := s.CancelRead()
	assert.Equal(t, model.OperationStatusSuccess, record.Status)

	select {
	case err := <-done:
		require.ErrorIs(t, err, protocol.ErrReadCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after cancel")
	}
}

func TestBoardService_LineStream(t *testing.T) {
	s, port, events, _ := newTestService(t, testConfig(), 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.StartLineStream(ctx))
	require.NoError(t, s.StartLineStream(ctx))

	_, err := s.ReadLine(ctx)
	require.ErrorIs(t, err, ErrStreamActive)

	port.AddReadData([]byte("a=1\nb=2\n"))
	require.Eventually(t, func() bool {
		n := 0
		for _, e := range events.types() {
			if e == model.EventSerialLine {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.StopLineStream()
	s.StopLineStream()

	port.AddReadData([]byte("c=3\n"))
	record, err := s.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c=3\n", record.Result.(map[string]any)["line"])
}

func TestBoardService_Stop(t *testing.T) {
	s, port, events, _ := newTestService(t, testConfig(), 0)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.StartLineStream(ctx))
	_, err := s.PulseOn(ctx, 13, 0)
	require.NoError(t, err)

	s.Stop()
	assert.False(t, s.Connected())
	assert.True(t, port.IsClosed())
	assert.Equal(t, []byte{0x15}, port.GetWrites()[len(port.GetWrites())-1])
	assert.Equal(t, model.BoardStateIdle, s.Status().State)
	assert.Contains(t, events.types(), model.EventBoardDisconnected)

	// stopping twice is harmless
	s.Stop()
	require.ErrorIs(t, s.StartLineStream(ctx), board.ErrNotConnected)
}
