// internal/transport/sim.go
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimTransport emulates an ELM327 v1.5 clone in process. It answers the AT
// setup dialect, a small set of current-data PIDs, stored-code read/clear and
// read-by-identifier requests, so the full engine can run without hardware.
// Test hooks allow scripting failures and overriding responses.
type SimTransport struct {
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  TransportStats

	// adapter state
	echo       bool
	protocol   string
	header     string
	needSearch bool
	voltage    float64
	storedDTCs [][2]byte
	didData    map[string][]byte

	pending string

	// test hooks
	openErr    error
	failReads  int
	overrides  map[string]string
	closeCalls int
	commands   []string
}

// NewSimTransport creates the adapter emulator with a warm, healthy vehicle.
func NewSimTransport(logger *zap.Logger) *SimTransport {
	return &SimTransport{
		logger:  logger.With(zap.String("transport", "sim")),
		voltage: 14.2,
		didData: map[string][]byte{
			// TCM transmission fluid temperature, 0x0D80/64 = 54 °C
			"7E1:1E1C": {0x0D, 0x80},
		},
		overrides: make(map[string]string),
	}
}

// Open marks the emulated port open
func (sim *SimTransport) Open(ctx context.Context) error {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()

	if sim.openErr != nil {
		return &OpenError{Port: "sim", Err: sim.openErr}
	}
	if sim.isOpen {
		return nil
	}

	sim.isOpen = true
	sim.resetAdapterLocked()
	sim.stats.IsConnected = true
	sim.stats.LastActivity = time.Now()
	sim.logger.Info("Sim adapter opened")
	return nil
}

// Close marks the emulated port closed
func (sim *SimTransport) Close() error {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()

	if !sim.isOpen {
		return nil
	}
	sim.isOpen = false
	sim.pending = ""
	sim.closeCalls++
	sim.stats.IsConnected = false
	sim.logger.Info("Sim adapter closed")
	return nil
}

// IsOpen returns whether the emulated port is open
func (sim *SimTransport) IsOpen() bool {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	return sim.isOpen
}

// Write accepts one command and queues the emulated reply
func (sim *SimTransport) Write(ctx context.Context, data []byte) error {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()

	if !sim.isOpen {
		return ErrNotOpen
	}

	command := strings.TrimSpace(strings.TrimSuffix(string(data), "\r"))
	sim.commands = append(sim.commands, command)
	reply := sim.respondLocked(command)

	if sim.echo {
		sim.pending = command + "\r" + reply + "\r"
	} else {
		sim.pending = reply + "\r"
	}

	sim.stats.BytesWritten += int64(len(data))
	sim.stats.OperationCount++
	sim.stats.LastActivity = time.Now()
	return nil
}

// ReadUntil returns the queued reply, or a timeout when a failure is
// scripted or no command preceded the read
func (sim *SimTransport) ReadUntil(ctx context.Context, terminator byte, timeout time.Duration) (RawResponse, error) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()

	if !sim.isOpen {
		return RawResponse{}, ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return RawResponse{}, ctx.Err()
	default:
	}

	if sim.failReads > 0 {
		sim.failReads--
		sim.pending = ""
		sim.stats.ErrorCount++
		return RawResponse{}, fmt.Errorf("no terminator within %s: %w", timeout, ErrTimeout)
	}

	if sim.pending == "" {
		sim.stats.ErrorCount++
		return RawResponse{}, fmt.Errorf("no terminator within %s: %w", timeout, ErrTimeout)
	}

	raw := sim.pending
	sim.pending = ""
	sim.stats.BytesRead += int64(len(raw))
	sim.stats.LastActivity = time.Now()

	return RawResponse{
		Raw:     raw,
		Lines:   SplitLines(raw),
		Elapsed: time.Millisecond,
		Bytes:   len(raw),
	}, nil
}

// Kind returns the transport kind
func (sim *SimTransport) Kind() string {
	return "sim"
}

// Stats returns a copy of the link statistics
func (sim *SimTransport) Stats() TransportStats {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	return sim.stats
}

// resetAdapterLocked restores power-on adapter defaults. Echo comes back on
// after a reset, exactly like the real chip.
func (sim *SimTransport) resetAdapterLocked() {
	sim.echo = true
	sim.protocol = "0"
	sim.header = "7DF"
	sim.needSearch = true
}

// respondLocked computes the reply for one command
func (sim *SimTransport) respondLocked(command string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(command, " ", ""))

	if override, ok := sim.overrides[normalized]; ok {
		return override
	}

	if strings.HasPrefix(normalized, "AT") {
		return sim.respondATLocked(normalized)
	}

	// Bus requests search for a protocol on the first attempt after reset
	// or a protocol switch
	prefix := ""
	if sim.needSearch {
		prefix = "SEARCHING...\r"
		sim.needSearch = false
	}

	switch {
	case normalized == "0100":
		return prefix + "41 00 BE 3E B8 11"
	case normalized == "0105":
		return prefix + "41 05 7B"
	case normalized == "010C":
		return prefix + "41 0C 1A F8"
	case normalized == "010D":
		return prefix + "41 0D 3C"
	case strings.HasPrefix(normalized, "01"):
		return prefix + "NO DATA"
	case normalized == "03":
		return prefix + sim.dtcResponseLocked()
	case normalized == "04":
		sim.storedDTCs = nil
		return prefix + "44"
	case strings.HasPrefix(normalized, "22") && len(normalized) == 6:
		return prefix + sim.didResponseLocked(normalized[2:])
	default:
		return "?"
	}
}

// respondATLocked answers the setup dialect
func (sim *SimTransport) respondATLocked(normalized string) string {
	switch {
	case normalized == "ATZ":
		sim.resetAdapterLocked()
		return "ELM327 v1.5"
	case normalized == "ATE0":
		sim.echo = false
		return "OK"
	case normalized == "ATE1":
		sim.echo = true
		return "OK"
	case normalized == "ATRV":
		return fmt.Sprintf("%.1fV", sim.voltage)
	case normalized == "ATDPN":
		if sim.protocol == "0" {
			return "A6"
		}
		return sim.protocol
	case strings.HasPrefix(normalized, "ATSP"):
		sim.protocol = strings.TrimPrefix(normalized, "ATSP")
		sim.needSearch = true
		return "OK"
	case strings.HasPrefix(normalized, "ATSH"):
		sim.header = strings.TrimPrefix(normalized, "ATSH")
		return "OK"
	case strings.HasPrefix(normalized, "ATST"):
		return "OK"
	case normalized == "ATL0", normalized == "ATL1",
		normalized == "ATS0", normalized == "ATS1",
		normalized == "ATH0", normalized == "ATH1",
		normalized == "ATCAF0", normalized == "ATCAF1",
		normalized == "ATCFC1", normalized == "ATCFC0",
		normalized == "ATAT1", normalized == "ATAT2":
		return "OK"
	default:
		return "?"
	}
}

// dtcResponseLocked renders mode 03 output: count byte then two-byte pairs
func (sim *SimTransport) dtcResponseLocked() string {
	if len(sim.storedDTCs) == 0 {
		return "43 00"
	}
	parts := []string{"43", fmt.Sprintf("%02X", len(sim.storedDTCs))}
	for _, pair := range sim.storedDTCs {
		parts = append(parts, fmt.Sprintf("%02X", pair[0]), fmt.Sprintf("%02X", pair[1]))
	}
	return strings.Join(parts, " ")
}

// didResponseLocked renders a read-by-identifier reply for the current header
func (sim *SimTransport) didResponseLocked(did string) string {
	key := sim.header + ":" + did
	data, ok := sim.didData[key]
	if !ok {
		// requestOutOfRange
		return "7F 22 31"
	}
	parts := []string{"62", did[:2], did[2:]}
	for _, b := range data {
		parts = append(parts, fmt.Sprintf("%02X", b))
	}
	return strings.Join(parts, " ")
}

// Test and demo hooks. They script the emulated vehicle; production code
// never calls them.

// SetOpenError makes subsequent Open calls fail with err until cleared
func (sim *SimTransport) SetOpenError(err error) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	sim.openErr = err
}

// FailReads makes the next n reads time out
func (sim *SimTransport) FailReads(n int) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	sim.failReads = n
}

// SetOverride pins the reply for an exact command (spaces ignored)
func (sim *SimTransport) SetOverride(command, reply string) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	sim.overrides[strings.ToUpper(strings.ReplaceAll(command, " ", ""))] = reply
}

// ClearOverride removes a pinned reply
func (sim *SimTransport) ClearOverride(command string) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	delete(sim.overrides, strings.ToUpper(strings.ReplaceAll(command, " ", "")))
}

// SetStoredDTCs loads raw trouble-code pairs into the emulated vehicle
func (sim *SimTransport) SetStoredDTCs(pairs [][2]byte) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	sim.storedDTCs = pairs
}

// SetDID sets the payload served for a header and identifier
func (sim *SimTransport) SetDID(header string, did uint16, data []byte) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	key := fmt.Sprintf("%s:%04X", strings.ToUpper(header), did)
	sim.didData[key] = data
}

// SetVoltage sets the emulated supply voltage
func (sim *SimTransport) SetVoltage(v float64) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	sim.voltage = v
}

// ClearDID removes the payload for a header and identifier, so reads of it
// draw a negative response again
func (sim *SimTransport) ClearDID(header string, did uint16) {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	key := fmt.Sprintf("%s:%04X", strings.ToUpper(header), did)
	delete(sim.didData, key)
}

// CloseCalls reports how many times the port went from open to closed
func (sim *SimTransport) CloseCalls() int {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	return sim.closeCalls
}

// SentCommands returns every command written so far
func (sim *SimTransport) SentCommands() []string {
	sim.mutex.Lock()
	defer sim.mutex.Unlock()
	out := make([]string, len(sim.commands))
	copy(out, sim.commands)
	return out
}
