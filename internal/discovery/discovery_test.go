package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	kind      string
	available bool
	ports     []*DiscoveredPort
	err       error
	calls     int
}

func (f *fakeScanner) Scan(ctx context.Context) ([]*DiscoveredPort, error) {
	f.calls++
	return f.ports, f.err
}

func (f *fakeScanner) GetScannerType() string { return f.kind }
func (f *fakeScanner) IsAvailable() bool      { return f.available }

func TestScannerManager_ScanAll(t *testing.T) {
	serial := &fakeScanner{kind: "serial", available: true, ports: []*DiscoveredPort{{Name: "/dev/ttyACM0"}, {Name: "/dev/ttyS0"}}}
	broken := &fakeScanner{kind: "usb", available: true, err: errors.New("libusb missing")}
	bridges := &fakeScanner{kind: "tcp", available: false, ports: []*DiscoveredPort{{Name: "socket://bridge:2000"}}}

	sm := NewScannerManager(nil)
	sm.RegisterScanner(serial)
	sm.RegisterScanner(broken)
	sm.RegisterScanner(bridges)

	ports, err := sm.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyS0"}, Names(ports))
	assert.Equal(t, 1, broken.calls)
	assert.Zero(t, bridges.calls)
	assert.Equal(t, []string{"serial", "usb"}, sm.GetAvailableScanners())
}

func TestScannerManager_ScanByType(t *testing.T) {
	sm := NewScannerManager(nil)
	sm.RegisterScanner(&fakeScanner{kind: "tcp", available: false})

	_, err := sm.ScanByType(context.Background(), "serial")
	require.ErrorContains(t, err, "not found")

	_, err = sm.ScanByType(context.Background(), "tcp")
	require.ErrorContains(t, err, "not available")
}

func TestScannerManager_ScanAllCancelled(t *testing.T) {
	sm := NewScannerManager(nil)
	scanner := &fakeScanner{kind: "serial", available: true}
	sm.RegisterScanner(scanner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sm.ScanAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, scanner.calls)
}

func TestBoardDatabase_Identify(t *testing.T) {
	db := NewBoardDatabase()

	match := db.Identify(0x2341, 0x0043)
	require.NotNil(t, match)
	assert.Equal(t, "Uno R3", match.Board)
	assert.Equal(t, "Arduino SA", match.Vendor)

	match = db.Identify(0x2341, 0x1234)
	require.NotNil(t, match)
	assert.Equal(t, "Arduino 1234", match.Board)
	assert.Less(t, match.Confidence, 0.5)

	assert.Nil(t, db.Identify(0x04B8, 0x0202))
	assert.True(t, db.IsKnownVendor(0x1A86))
	assert.Positive(t, db.GetTotalProductCount())

	match = db.IdentifyHex("1a86", "0x7523")
	require.NotNil(t, match)
	assert.Equal(t, "CH340 clone", match.Board)
	assert.Nil(t, db.IdentifyHex("zz", "0043"))
}

func TestParseUSBID(t *testing.T) {
	id, err := ParseUSBID("2341")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2341), id)

	id, err = ParseUSBID(" 0xEA60 ")
	require.NoError(t, err)
	assert.Equal(t, uint16(0xEA60), id)

	_, err = ParseUSBID("12345")
	require.Error(t, err)
}
