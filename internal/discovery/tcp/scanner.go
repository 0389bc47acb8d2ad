// 📁 internal/discovery/tcp/scanner.go - Network Serial Bridge Scanner
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"pino/internal/discovery"
	"pino/internal/model"
	"pino/internal/protocol"
)

// Scanner probes configured serial-over-TCP bridges (ser2net, esp-link)
type Scanner struct {
	logger *zap.Logger
	config *Config
	dialer net.Dialer
}

// Config for the bridge scanner
type Config struct {
	Bridges     []string      `json:"bridges"` // host:port
	ConnTimeout time.Duration `json:"connection_timeout"`
}

// NewScanner creates a new bridge scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &Config{}
	}
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 2 * time.Second
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: config,
		dialer: net.Dialer{Timeout: config.ConnTimeout},
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether any bridge is configured
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Bridges) > 0
}

// Scan dials every bridge concurrently and reports the reachable ones as
// socket:// targets, in configuration order
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	reachable := make([]bool, len(s.config.Bridges))

	var wg sync.WaitGroup
	for i, addr := range s.config.Bridges {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			conn, err := s.dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				s.logger.Debug("Bridge unreachable", zap.String("address", addr), zap.Error(err))
				return
			}
			conn.Close()
			reachable[i] = true
		}(i, addr)
	}
	wg.Wait()

	var discovered []*discovery.DiscoveredPort
	for i, addr := range s.config.Bridges {
		if !reachable[i] {
			continue
		}
		discovered = append(discovered, &discovery.DiscoveredPort{
			Name:           protocol.SocketScheme + addr,
			ConnectionType: model.ConnectionTypeTCP,
			Location:       addr,
		})
	}

	s.logger.Debug("Bridge scan completed", zap.Int("bridges_found", len(discovered)))
	return discovered, ctx.Err()
}
