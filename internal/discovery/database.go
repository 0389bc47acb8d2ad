// 📁 internal/discovery/database.go - Board Database
package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// BoardDatabase identifies boards and USB serial bridges by VID/PID
type BoardDatabase struct {
	vendors map[uint16]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	Generic  string // reported for products not listed below
	products map[uint16]*ProductInfo
}

// ProductInfo contains product-specific information
type ProductInfo struct {
	Model      string
	Confidence float64
}

// Match is the result of a database lookup
type Match struct {
	Vendor     string
	Board      string
	Confidence float64
}

// NewBoardDatabase creates and initializes the board database
func NewBoardDatabase() *BoardDatabase {
	db := &BoardDatabase{
		vendors: make(map[uint16]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *BoardDatabase) initializeDatabase() {
	// Arduino SA (0x2341)
	db.AddVendor(0x2341, &VendorInfo{Name: "Arduino SA", Generic: "Arduino"})
	db.AddProduct(0x2341, 0x0001, &ProductInfo{Model: "Uno", Confidence: 0.95})
	db.AddProduct(0x2341, 0x0043, &ProductInfo{Model: "Uno R3", Confidence: 0.95})
	db.AddProduct(0x2341, 0x0010, &ProductInfo{Model: "Mega 2560", Confidence: 0.95})
	db.AddProduct(0x2341, 0x0042, &ProductInfo{Model: "Mega 2560 R3", Confidence: 0.95})
	db.AddProduct(0x2341, 0x8036, &ProductInfo{Model: "Leonardo", Confidence: 0.95})
	db.AddProduct(0x2341, 0x0036, &ProductInfo{Model: "Leonardo (bootloader)", Confidence: 0.80})
	db.AddProduct(0x2341, 0x8037, &ProductInfo{Model: "Micro", Confidence: 0.95})
	db.AddProduct(0x2341, 0x0058, &ProductInfo{Model: "Nano Every", Confidence: 0.95})

	// Arduino Srl (0x2A03), arduino.org boards
	db.AddVendor(0x2A03, &VendorInfo{Name: "Arduino Srl", Generic: "Arduino"})
	db.AddProduct(0x2A03, 0x0043, &ProductInfo{Model: "Uno R3", Confidence: 0.90})
	db.AddProduct(0x2A03, 0x0042, &ProductInfo{Model: "Mega 2560 R3", Confidence: 0.90})

	// USB serial bridges found on clone boards
	db.AddVendor(0x1A86, &VendorInfo{Name: "QinHeng Electronics", Generic: "USB serial bridge"})
	db.AddProduct(0x1A86, 0x7523, &ProductInfo{Model: "CH340 clone", Confidence: 0.60})

	db.AddVendor(0x0403, &VendorInfo{Name: "FTDI", Generic: "USB serial bridge"})
	db.AddProduct(0x0403, 0x6001, &ProductInfo{Model: "FT232R (Nano, Duemilanove)", Confidence: 0.50})

	db.AddVendor(0x10C4, &VendorInfo{Name: "Silicon Labs", Generic: "USB serial bridge"})
	db.AddProduct(0x10C4, 0xEA60, &ProductInfo{Model: "CP210x clone", Confidence: 0.40})
}

// Identify looks up a VID/PID pair. Unknown products of a known vendor match
// with a lowered confidence; unknown vendors return nil.
func (db *BoardDatabase) Identify(vendorID, productID uint16) *Match {
	vendor, exists := db.vendors[vendorID]
	if !exists {
		return nil
	}

	if product, ok := vendor.products[productID]; ok {
		return &Match{Vendor: vendor.Name, Board: product.Model, Confidence: product.Confidence}
	}
	return &Match{
		Vendor:     vendor.Name,
		Board:      fmt.Sprintf("%s %04X", vendor.Generic, productID),
		Confidence: 0.30,
	}
}

// IdentifyHex is Identify for the hex strings reported by port enumerators
func (db *BoardDatabase) IdentifyHex(vendorID, productID string) *Match {
	vid, err := ParseUSBID(vendorID)
	if err != nil {
		return nil
	}
	pid, err := ParseUSBID(productID)
	if err != nil {
		return nil
	}
	return db.Identify(vid, pid)
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *BoardDatabase) IsKnownVendor(vendorID uint16) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetTotalProductCount returns total number of known products
func (db *BoardDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}

// AddVendor adds a new vendor to the database
func (db *BoardDatabase) AddVendor(vendorID uint16, info *VendorInfo) {
	if info.products == nil {
		info.products = make(map[uint16]*ProductInfo)
	}
	db.vendors[vendorID] = info
}

// AddProduct adds a new product to an existing vendor
func (db *BoardDatabase) AddProduct(vendorID, productID uint16, info *ProductInfo) {
	if vendor, exists := db.vendors[vendorID]; exists {
		vendor.products[productID] = info
	}
}

// ParseUSBID parses a four digit hex id, with or without a 0x prefix
func ParseUSBID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid usb id %q: %w", s, err)
	}
	return uint16(id), nil
}
