// 📁 internal/discovery/usb/scanner.go - USB Descriptor Scanner Implementation
package usb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"pino/internal/discovery"
	"pino/internal/model"
)

// EnumerateFunc calls visit for every USB device descriptor on the host
type EnumerateFunc func(visit func(desc *gousb.DeviceDesc)) error

// Scanner finds boards on the USB bus, including ones that expose no serial
// port yet (bootloader mode, missing driver). It reads descriptors only and
// never opens a device.
type Scanner struct {
	logger    *zap.Logger
	config    *Config
	db        *discovery.BoardDatabase
	enumerate EnumerateFunc
}

// Config for USB scanner
type Config struct {
	Enabled     bool          `json:"enabled"`
	ScanTimeout time.Duration `json:"scan_timeout"`
	EnableDebug bool          `json:"enable_debug"`
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &Config{Enabled: true}
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = 10 * time.Second
	}

	s := &Scanner{
		logger: logger.With(zap.String("scanner", "usb")),
		config: config,
		db:     discovery.NewBoardDatabase(),
	}
	s.enumerate = s.enumerateDescriptors
	return s
}

// WithEnumerator replaces the libusb enumeration
func (s *Scanner) WithEnumerator(enumerate EnumerateFunc) *Scanner {
	s.enumerate = enumerate
	return s
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable reports whether USB scanning is enabled
func (s *Scanner) IsAvailable() bool {
	return s.config.Enabled
}

// Scan reports every USB device whose vendor is in the board database
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	var discovered []*discovery.DiscoveredPort
	done := make(chan error, 1)
	go func() {
		done <- s.enumerate(func(desc *gousb.DeviceDesc) {
			if port := s.describe(desc); port != nil {
				discovered = append(discovered, port)
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
	case <-scanCtx.Done():
		return nil, scanCtx.Err()
	}

	s.logger.Debug("USB scan completed",
		zap.Int("boards_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return discovered, nil
}

func (s *Scanner) describe(desc *gousb.DeviceDesc) *discovery.DiscoveredPort {
	match := s.db.Identify(uint16(desc.Vendor), uint16(desc.Product))
	if match == nil {
		return nil
	}

	s.logger.Debug("Found known vendor device",
		zap.String("vendor_id", fmt.Sprintf("0x%04X", desc.Vendor)),
		zap.String("product_id", fmt.Sprintf("0x%04X", desc.Product)),
		zap.String("board", match.Board),
	)

	return &discovery.DiscoveredPort{
		ConnectionType: model.ConnectionTypeUSB,
		IsUSB:          true,
		VendorID:       fmt.Sprintf("%04X", desc.Vendor),
		ProductID:      fmt.Sprintf("%04X", desc.Product),
		Vendor:         match.Vendor,
		Board:          match.Board,
		Confidence:     match.Confidence,
		Location:       fmt.Sprintf("USB-Bus%d-Address%d", desc.Bus, desc.Address),
	}
}

// enumerateDescriptors walks the bus through libusb
func (s *Scanner) enumerateDescriptors(visit func(desc *gousb.DeviceDesc)) error {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		visit(desc)
		return false
	})
	for _, d := range devices {
		d.Close()
	}
	return err
}
