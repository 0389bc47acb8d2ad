// 📁 internal/discovery/scanner.go - Port Scanner Interface
package discovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pino/internal/model"
)

// PortScanner finds places a board can be reached
type PortScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredPort represents a port found by a scanner
type DiscoveredPort struct {
	Name           string               `json:"name"`
	ConnectionType model.ConnectionType `json:"connection_type"`
	IsUSB          bool                 `json:"is_usb"`
	VendorID       string               `json:"vendor_id,omitempty"`
	ProductID      string               `json:"product_id,omitempty"`
	SerialNumber   string               `json:"serial_number,omitempty"`
	Product        string               `json:"product,omitempty"`
	Vendor         string               `json:"vendor,omitempty"`
	Board          string               `json:"board,omitempty"`
	Confidence     float64              `json:"confidence"` // 0.0-1.0
	Location       string               `json:"location,omitempty"`
}

// Known reports whether the port was matched against the board database
func (p *DiscoveredPort) Known() bool {
	return p.Board != ""
}

// Names returns the connectable names of the given ports, skipping entries
// without one
func Names(ports []*DiscoveredPort) []string {
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

// ScannerManager runs registered scanners in registration order
type ScannerManager struct {
	scanners map[string]PortScanner
	order    []string
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScannerManager{
		scanners: make(map[string]PortScanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner registers a scanner, replacing one of the same type
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	scannerType := scanner.GetScannerType()
	if _, exists := sm.scanners[scannerType]; !exists {
		sm.order = append(sm.order, scannerType)
	}
	sm.scanners[scannerType] = scanner
	sm.logger.Debug("Scanner registered", zap.String("type", scannerType))
}

// ScanAll scans with every available scanner. A failing scanner is logged
// and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredPort, error) {
	var all []*DiscoveredPort

	for _, scannerType := range sm.order {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		ports, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Warn("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, ports...)
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(ports)),
		)
	}

	return all, nil
}

// ScanByType scans with a single scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredPort, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scannerType := range sm.order {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}
