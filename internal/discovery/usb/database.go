// internal/discovery/usb/database.go
package usb

import (
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// BridgeDatabase holds the USB-serial bridge chips that ELM327 adapters are
// built around. A match means "very likely an adapter", not proof; the
// session init sequence is the real test.
type BridgeDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[gousb.ID]*BridgeInfo
}

// BridgeInfo contains bridge-chip-specific information
type BridgeInfo struct {
	Chip       string
	Confidence float64
}

// NewBridgeDatabase creates and initializes the bridge chip database
func NewBridgeDatabase() *BridgeDatabase {
	db := &BridgeDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

// initializeDatabase populates the known bridge chips
func (db *BridgeDatabase) initializeDatabase() {
	// FTDI (0x0403); genuine ELM327 boards and OBDLink adapters mostly
	// ship with these.
	ftdi := &VendorInfo{
		Name:     "Future Technology Devices International",
		products: make(map[gousb.ID]*BridgeInfo),
	}
	ftdi.products[0x6001] = &BridgeInfo{Chip: "FT232R", Confidence: 0.9}
	ftdi.products[0x6010] = &BridgeInfo{Chip: "FT2232H", Confidence: 0.7}
	ftdi.products[0x6011] = &BridgeInfo{Chip: "FT4232H", Confidence: 0.6}
	ftdi.products[0x6014] = &BridgeInfo{Chip: "FT232H", Confidence: 0.7}
	ftdi.products[0x6015] = &BridgeInfo{Chip: "FT231X", Confidence: 0.9}
	db.vendors[0x0403] = ftdi

	// Silicon Labs (0x10C4)
	siliconLabs := &VendorInfo{
		Name:     "Silicon Laboratories",
		products: make(map[gousb.ID]*BridgeInfo),
	}
	siliconLabs.products[0xEA60] = &BridgeInfo{Chip: "CP2102", Confidence: 0.9}
	siliconLabs.products[0xEA61] = &BridgeInfo{Chip: "CP2104", Confidence: 0.85}
	siliconLabs.products[0xEA70] = &BridgeInfo{Chip: "CP2105", Confidence: 0.7}
	db.vendors[0x10C4] = siliconLabs

	// QinHeng (0x1A86); the bulk of low-cost clones.
	qinheng := &VendorInfo{
		Name:     "QinHeng Electronics",
		products: make(map[gousb.ID]*BridgeInfo),
	}
	qinheng.products[0x7523] = &BridgeInfo{Chip: "CH340", Confidence: 0.9}
	qinheng.products[0x5523] = &BridgeInfo{Chip: "CH341", Confidence: 0.8}
	qinheng.products[0x55D4] = &BridgeInfo{Chip: "CH9102", Confidence: 0.85}
	db.vendors[0x1A86] = qinheng

	// Prolific (0x067B)
	prolific := &VendorInfo{
		Name:     "Prolific Technology",
		products: make(map[gousb.ID]*BridgeInfo),
	}
	prolific.products[0x2303] = &BridgeInfo{Chip: "PL2303", Confidence: 0.85}
	prolific.products[0x23A3] = &BridgeInfo{Chip: "PL2303GC", Confidence: 0.85}
	db.vendors[0x067B] = prolific
}

// IsKnownVendor checks if a vendor ID belongs to a bridge chip maker
func (db *BridgeDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// Lookup resolves a vendor/product pair to its bridge chip, if known.
func (db *BridgeDatabase) Lookup(vendorID, productID gousb.ID) (*VendorInfo, *BridgeInfo) {
	vendor := db.vendors[vendorID]
	if vendor == nil {
		return nil, nil
	}
	return vendor, vendor.products[productID]
}

// LookupHex resolves the four-hex-digit IDs reported by the serial port
// enumerator, e.g. "0403"/"6001".
func (db *BridgeDatabase) LookupHex(vendorID, productID string) (*VendorInfo, *BridgeInfo) {
	vid, err := parseHexID(vendorID)
	if err != nil {
		return nil, nil
	}
	pid, err := parseHexID(productID)
	if err != nil {
		return nil, nil
	}
	return db.Lookup(vid, pid)
}

// GetTotalProductCount returns total number of known bridge chips
func (db *BridgeDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}

func parseHexID(s string) (gousb.ID, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(value), nil
}
