// internal/service/board_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pino/internal/board"
	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/model"
	"pino/internal/protocol"
	"pino/internal/utils"
)

var (
	// ErrPulseDisabled is returned by pulse operations unless experimental.optuino is set
	ErrPulseDisabled = errors.New("pulse extension is not enabled")
	// ErrStreamActive is returned by reads while the line stream owns the input
	ErrStreamActive = errors.New("serial line stream is active")
)

// EventPublisher receives board events
type EventPublisher interface {
	Publish(event *model.BoardEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(*model.BoardEvent) {}

// BoardService owns one board for the HTTP service. Operations are
// serialized by a mutex; the line stream reads outside it and is stopped
// with CancelRead.
type BoardService struct {
	config  *config.Config
	comport *comport.Comport
	events  EventPublisher
	logger  *utils.ServiceLogger
	base    *zap.Logger

	mutex       sync.Mutex
	board       *board.Optuino
	boardLogger *utils.BoardLogger
	state       model.BoardState
	lastErr     error
	connectedAt *time.Time

	stream *lineStream
	conn   atomic.Pointer[protocol.SerialConnection]
}

type lineStream struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewBoardService creates a board service for the link described by c
func NewBoardService(cfg *config.Config, c *comport.Comport, logger *zap.Logger) *BoardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardService{
		config:      cfg,
		comport:     c,
		events:      nopPublisher{},
		logger:      utils.NewServiceLogger(logger, "board-service"),
		base:        logger,
		boardLogger: utils.NewBoardLogger(logger, c.Port()),
		state:       model.BoardStateIdle,
	}
}

// SetEventPublisher sets where board events are sent
func (s *BoardService) SetEventPublisher(p EventPublisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	s.events = p
}

func (s *BoardService) publish(eventType model.EventType, data map[string]any) {
	s.events.Publish(model.NewBoardEvent(eventType, s.comport.Port(), data))
}

// Start deploys the firmware when configured, connects, applies the pin
// modes and preloads the pulse slots. Starting a connected board does
// nothing.
func (s *BoardService) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.board != nil {
		return nil
	}

	opLogger := utils.NewOperationLogger(s.base, string(model.OperationConnect), s.comport.Port())
	opLogger.Start(
		zap.Int("baud_rate", s.comport.BaudRate()),
		zap.Bool("deploy", s.config.Comport.Deploy),
	)

	if err := s.start(ctx); err != nil {
		s.state = model.BoardStateError
		s.lastErr = err
		opLogger.Error(err)
		s.publish(model.EventBoardError, map[string]any{"error": err.Error()})
		return err
	}

	now := time.Now()
	s.state = model.BoardStateConnected
	s.lastErr = nil
	s.connectedAt = &now
	opLogger.Success(zap.Int("pin_modes", len(s.config.PinMode)))
	s.publish(model.EventBoardConnected, map[string]any{"baud_rate": s.comport.BaudRate()})
	return nil
}

func (s *BoardService) start(ctx context.Context) error {
	if s.config.Comport.Deploy {
		s.state = model.BoardStateDeploying
		err := s.comport.Deploy(ctx)
		s.boardLogger.LogConnection("deploy", err)
		if err != nil {
			return err
		}
		s.publish(model.EventBoardDeployed, map[string]any{"firmware": s.comport.FirmwarePath()})
	}

	s.state = model.BoardStateConnecting
	err := s.comport.Connect(ctx)
	s.boardLogger.LogConnection("connect", err)
	if err != nil {
		return err
	}

	b, err := board.NewOptuino(s.comport, s.base)
	if err != nil {
		return err
	}

	if err := b.ApplyPinModeSettings(ctx, s.config.PinMode); err != nil {
		s.comport.Disconnect()
		return fmt.Errorf("failed to apply pin modes: %w", err)
	}

	if s.config.Experimental.Optuino {
		for i, p := range s.config.Experimental.Pulse {
			if err := b.SetPulseParams(ctx, i, p.Frequency, p.Duration); err != nil {
				s.comport.Disconnect()
				return fmt.Errorf("failed to preload pulse slot %d: %w", i, err)
			}
		}
	}

	s.board = b
	s.conn.Store(s.comport.Connection())
	return nil
}

// Stop ends the line stream, stops a running pulse and disconnects
func (s *BoardService) Stop() {
	s.StopLineStream()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.board == nil {
		return
	}

	if s.board.Pulsing() {
		if err := s.board.PulseOff(context.Background()); err != nil {
			s.logger.Warn("Failed to stop pulse before disconnect", zap.Error(err))
		}
	}
	err := s.board.Disconnect()
	s.comport.Disconnect()
	s.boardLogger.LogConnection("disconnect", err)

	s.conn.Store(nil)
	s.board = nil
	s.state = model.BoardStateIdle
	s.connectedAt = nil
	s.publish(model.EventBoardDisconnected, nil)
}

// Connected reports whether the board is connected
func (s *BoardService) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.board != nil
}

// Status returns a snapshot of the board and link state
func (s *BoardService) Status() *model.BoardStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := &model.BoardStatus{
		State:        s.state,
		Port:         s.comport.Port(),
		BaudRate:     s.comport.BaudRate(),
		FirmwarePath: s.comport.FirmwarePath(),
		PulseCapable: s.config.Experimental.Optuino,
		ConnectedAt:  s.connectedAt,
		Metadata:     s.config.Metadata,
	}
	if d := s.comport.Timeout(); d > 0 {
		status.Timeout = d.String()
	}
	if d := s.comport.Warmup(); d > 0 {
		status.Warmup = d.String()
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	for _, p := range s.config.PinMode {
		status.PinModes = append(status.PinModes, model.PinModeRequest{Pin: p.Pin, Mode: p.Mode})
	}

	if s.board != nil {
		status.Pulsing = s.board.Pulsing()
		status.PulseSettings = s.board.PulseSettings()
	}
	if conn := s.comport.Connection(); conn != nil {
		stats := conn.Stats()
		status.BytesWritten = stats.BytesWritten
		status.BytesRead = stats.BytesRead
		status.FramesWritten = stats.FramesWritten
		status.TransportError = stats.ErrorCount
	}
	return status
}

// run executes op under the service mutex and records its outcome
func (s *BoardService) run(ctx context.Context, opType model.OperationType, op func(ctx context.Context, b *board.Optuino) (any, error)) (*model.OperationRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := model.NewOperationRecord(opType)

	var result any
	var err error
	if s.board == nil {
		err = board.ErrNotConnected
	} else {
		result, err = op(ctx, s.board)
	}

	record.Result = result
	record.Complete(err)
	s.boardLogger.LogOperation(string(opType), time.Since(record.StartedAt), err,
		zap.String("operation_id", record.ID.String()),
	)
	if err != nil {
		s.publish(model.EventOperationFailed, map[string]any{
			"operation_type": opType,
			"error":          err.Error(),
		})
		return record, err
	}
	return record, nil
}

func (s *BoardService) checkReadable() error {
	if s.stream != nil && !s.stream.stopped {
		return ErrStreamActive
	}
	return nil
}

func (s *BoardService) checkPulse() error {
	if !s.config.Experimental.Optuino {
		return ErrPulseDisabled
	}
	return nil
}

// SetPinMode sets the mode of one pin by name
func (s *BoardService) SetPinMode(ctx context.Context, pin int, mode string) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationSetPinMode, func(ctx context.Context, b *board.Optuino) (any, error) {
		m, ok := protocol.ParsePinMode(mode)
		if !ok {
			return nil, fmt.Errorf("%w: %q", board.ErrUnsupportedMode, mode)
		}
		return nil, b.SetPinMode(ctx, pin, m)
	})
}

// ApplyPinModes applies several pin modes in order, none if any is unknown
func (s *BoardService) ApplyPinModes(ctx context.Context, settings []config.PinModeSetting) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationApplyPinModes, func(ctx context.Context, b *board.Optuino) (any, error) {
		return nil, b.ApplyPinModeSettings(ctx, settings)
	})
}

// DigitalWrite writes LOW or HIGH to a pin
func (s *BoardService) DigitalWrite(ctx context.Context, pin int, state string) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationDigitalWrite, func(ctx context.Context, b *board.Optuino) (any, error) {
		st, err := parseState(state)
		if err != nil {
			return nil, err
		}
		return nil, b.DigitalWrite(ctx, pin, st)
	})
}

// MultipleDigitalWrite writes states to pins pairwise
func (s *BoardService) MultipleDigitalWrite(ctx context.Context, pins []int, states []string) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationMultipleDigitalWrite, func(ctx context.Context, b *board.Optuino) (any, error) {
		parsed := make([]protocol.PinState, 0, len(states))
		for _, state := range states[:min(len(pins), len(states))] {
			st, err := parseState(state)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, st)
		}
		return nil, b.MultipleDigitalWrite(ctx, pins, parsed)
	})
}

func parseState(state string) (protocol.PinState, error) {
	st, ok := protocol.ParsePinState(state)
	if !ok {
		return protocol.Low, fmt.Errorf("%w: %q", board.ErrUnsupportedState, state)
	}
	return st, nil
}

// DigitalRead reads the level of a pin
func (s *BoardService) DigitalRead(ctx context.Context, pin int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationDigitalRead, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkReadable(); err != nil {
			return nil, err
		}
		state, ok, err := b.DigitalRead(ctx, pin)
		if err != nil {
			return nil, err
		}
		result := &model.DigitalReadResult{Pin: pin, TimedOut: !ok}
		if ok {
			result.State = state.String()
			result.High = state == protocol.High
		}
		return result, nil
	})
}

// AnalogWrite writes a PWM value to a pin
func (s *BoardService) AnalogWrite(ctx context.Context, pin, value int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationAnalogWrite, func(ctx context.Context, b *board.Optuino) (any, error) {
		return nil, b.AnalogWrite(ctx, pin, value)
	})
}

// MultipleAnalogWrite writes values to pins pairwise
func (s *BoardService) MultipleAnalogWrite(ctx context.Context, pins, values []int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationMultipleAnalogWrite, func(ctx context.Context, b *board.Optuino) (any, error) {
		return nil, b.MultipleAnalogWrite(ctx, pins, values)
	})
}

// AnalogRead reads size raw bytes for a pin
func (s *BoardService) AnalogRead(ctx context.Context, pin, size int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationAnalogRead, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkReadable(); err != nil {
			return nil, err
		}
		data, err := b.AnalogRead(ctx, pin, size)
		if err != nil {
			return nil, err
		}
		return &model.AnalogReadResult{Pin: pin, Raw: data, TimedOut: len(data) < size}, nil
	})
}

// ServoRotate rotates a servo
func (s *BoardService) ServoRotate(ctx context.Context, pin, angle int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationServoRotate, func(ctx context.Context, b *board.Optuino) (any, error) {
		return nil, b.ServoRotate(ctx, pin, angle)
	})
}

// MultipleServoRotate rotates servos pairwise
func (s *BoardService) MultipleServoRotate(ctx context.Context, pins, angles []int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationMultipleServoRotate, func(ctx context.Context, b *board.Optuino) (any, error) {
		return nil, b.MultipleServoRotate(ctx, pins, angles)
	})
}

// ReadLine reads one line printed by the firmware
func (s *BoardService) ReadLine(ctx context.Context) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationReadLine, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkReadable(); err != nil {
			return nil, err
		}
		line, err := b.ReadUntilEOL(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"line": string(line), "timed_out": line == nil}, nil
	})
}

// CancelRead aborts a read blocked on the board. It does not wait for the
// service mutex, since the blocked read is holding it.
func (s *BoardService) CancelRead() *model.OperationRecord {
	record := model.NewOperationRecord(model.OperationCancelRead)
	if conn := s.conn.Load(); conn != nil {
		conn.CancelRead()
		record.Complete(nil)
	} else {
		record.Complete(board.ErrNotConnected)
	}
	return record
}

// SetPulseParams stores a pulse slot
func (s *BoardService) SetPulseParams(ctx context.Context, idx, frequency, duration int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationSetPulseParams, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkPulse(); err != nil {
			return nil, err
		}
		return nil, b.SetPulseParams(ctx, idx, frequency, duration)
	})
}

// PulseOn starts pulsing a pin
func (s *BoardService) PulseOn(ctx context.Context, pin, idx int) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationPulseOn, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkPulse(); err != nil {
			return nil, err
		}
		wasPulsing := b.Pulsing()
		if err := b.PulseOn(ctx, pin, idx); err != nil {
			return nil, err
		}
		if !wasPulsing {
			s.publish(model.EventPulseStarted, map[string]any{"pin": pin, "index": idx})
		}
		return pulseState(b), nil
	})
}

// PulseOff stops pulsing
func (s *BoardService) PulseOff(ctx context.Context) (*model.OperationRecord, error) {
	return s.run(ctx, model.OperationPulseOff, func(ctx context.Context, b *board.Optuino) (any, error) {
		if err := s.checkPulse(); err != nil {
			return nil, err
		}
		wasPulsing := b.Pulsing()
		if err := b.PulseOff(ctx); err != nil {
			return nil, err
		}
		if wasPulsing {
			s.publish(model.EventPulseStopped, nil)
		}
		return pulseState(b), nil
	})
}

// PulseState reports the pulse history and whether a pulse runs
func (s *BoardService) PulseState() (*model.PulseState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkPulse(); err != nil {
		return nil, err
	}
	if s.board == nil {
		return nil, board.ErrNotConnected
	}
	return pulseState(s.board), nil
}

func pulseState(b *board.Optuino) *model.PulseState {
	return &model.PulseState{
		Pulsing:   b.Pulsing(),
		Frequency: b.PulseFrequency(),
		Duration:  b.PulseDuration(),
		Settings:  b.PulseSettings(),
	}
}

// StartLineStream reads lines in the background and publishes each one as
// an EventSerialLine event until StopLineStream, a closed link or ctx ends
// it. Starting a running stream does nothing.
func (s *BoardService) StartLineStream(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.board == nil {
		return board.ErrNotConnected
	}
	if s.stream != nil && !s.stream.stopped {
		return nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := &lineStream{cancel: cancel, done: make(chan struct{})}
	s.stream = stream
	go s.readLines(streamCtx, s.board, stream)

	s.logger.Info("Serial line stream started")
	return nil
}

func (s *BoardService) readLines(ctx context.Context, b *board.Optuino, stream *lineStream) {
	defer close(stream.done)
	defer func() {
		s.mutex.Lock()
		stream.stopped = true
		s.mutex.Unlock()
	}()

	for {
		line, err := b.ReadUntilEOL(ctx)
		switch {
		case err == nil && line == nil:
			continue
		case err == nil:
			s.publish(model.EventSerialLine, map[string]any{"line": string(line)})
		case errors.Is(err, protocol.ErrReadCancelled):
			s.mutex.Lock()
			stopped := stream.stopped
			s.mutex.Unlock()
			if stopped || ctx.Err() != nil {
				return
			}
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			return
		default:
			s.logger.Warn("Serial line stream ended", zap.Error(err))
			return
		}
	}
}

// StopLineStream cancels the in-flight line read and waits for the stream
// to end
func (s *BoardService) StopLineStream() {
	s.mutex.Lock()
	stream := s.stream
	if stream == nil {
		s.mutex.Unlock()
		return
	}
	stream.stopped = true
	s.stream = nil
	b := s.board
	s.mutex.Unlock()

	if b != nil {
		b.CancelRead()
	}
	stream.cancel()
	<-stream.done
	s.logger.Info("Serial line stream stopped")
}

// AvailablePorts lists the serial ports of the host
func (s *BoardService) AvailablePorts(ctx context.Context) ([]string, error) {
	return s.comport.AvailablePorts(ctx)
}
