// 📁 internal/discovery/serial/scanner.go - Serial Port Scanner Implementation
package serial

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"pino/internal/discovery"
	"pino/internal/model"
)

// ListFunc enumerates the serial ports of the host
type ListFunc func() ([]*enumerator.PortDetails, error)

// Scanner implements serial port discovery
type Scanner struct {
	logger *zap.Logger
	config *Config
	db     *discovery.BoardDatabase
	list   ListFunc
}

// Config for serial scanner
type Config struct {
	// OnlyKnown drops ports whose VID/PID is not in the board database
	OnlyKnown bool `json:"only_known"`
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &Config{}
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		config: config,
		db:     discovery.NewBoardDatabase(),
		list:   enumerator.GetDetailedPortsList,
	}
}

// WithLister replaces the port enumerator
func (s *Scanner) WithLister(list ListFunc) *Scanner {
	s.list = list
	return s
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports and identifies known boards among them
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	startTime := time.Now()

	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	discovered := make([]*discovery.DiscoveredPort, 0, len(details))
	for _, d := range details {
		select {
		case <-ctx.Done():
			return discovered, ctx.Err()
		default:
		}

		port := s.describe(d)
		if s.config.OnlyKnown && !port.Known() {
			continue
		}
		discovered = append(discovered, port)
	}

	s.logger.Debug("Serial scan completed",
		zap.Int("ports_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return discovered, nil
}

func (s *Scanner) describe(d *enumerator.PortDetails) *discovery.DiscoveredPort {
	port := &discovery.DiscoveredPort{
		Name:           d.Name,
		ConnectionType: model.ConnectionTypeSerial,
		IsUSB:          d.IsUSB,
		SerialNumber:   d.SerialNumber,
		Product:        d.Product,
	}
	if !d.IsUSB {
		return port
	}

	port.VendorID = d.VID
	port.ProductID = d.PID
	if match := s.db.IdentifyHex(d.VID, d.PID); match != nil {
		port.Vendor = match.Vendor
		port.Board = match.Board
		port.Confidence = match.Confidence
		s.logger.Debug("Board identified",
			zap.String("port", d.Name),
			zap.String("board", match.Board),
			zap.Float64("confidence", match.Confidence),
		)
	}
	return port
}

// PortNames returns the names of every serial port on the host
func PortNames(ctx context.Context) ([]string, error) {
	ports, err := NewScanner(nil, nil).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return discovery.Names(ports), nil
}
