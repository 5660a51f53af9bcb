// internal/driver/elm327/commands.go
package elm327

import (
	"fmt"
	"time"
)

// AT_COMMANDS contains the adapter control commands used by the session.
// Commands are sent without the trailing carriage return; the session
// appends it on write.
var AT_COMMANDS = struct {
	// Reset and identity
	RESET        string
	READ_VOLTAGE string
	PROTOCOL_NUM string

	// Line discipline
	ECHO_OFF      string
	LINEFEEDS_OFF string
	SPACES_OFF    string
	HEADERS_OFF   string
	HEADERS_ON    string

	// Framing
	AUTO_FORMAT_OFF string
	FLOW_CONTROL_ON string
	TIMEOUT_SET     string

	// Protocol selection
	PROTOCOL_AUTO     string
	PROTOCOL_CAN_29B  string
	SET_HEADER_PREFIX string
}{
	RESET:        "ATZ",
	READ_VOLTAGE: "ATRV",
	PROTOCOL_NUM: "ATDPN",

	ECHO_OFF:      "ATE0",
	LINEFEEDS_OFF: "ATL0",
	SPACES_OFF:    "ATS0",
	HEADERS_OFF:   "ATH0",
	HEADERS_ON:    "ATH1",

	AUTO_FORMAT_OFF: "ATCAF0",
	FLOW_CONTROL_ON: "ATCFC1",
	TIMEOUT_SET:     "ATST64",

	PROTOCOL_AUTO:     "ATSP0",
	PROTOCOL_CAN_29B:  "ATSP7",
	SET_HEADER_PREFIX: "ATSH",
}

// FunctionalHeader is the broadcast CAN identifier every emissions-capable
// module listens on. Module-addressed DID requests override it via ATSH and
// the session restores it afterwards.
const FunctionalHeader = "7DF"

// CommandRequest describes one adapter exchange: the text to send and how
// long to wait for the '>' prompt.
type CommandRequest struct {
	Text    string
	Timeout time.Duration
	// SettleDelay is waited after the response before the next command may
	// be sent. The ELM327 needs this after ATZ while the interpreter
	// restarts.
	SettleDelay time.Duration
}

// Exchange timeouts. Bus requests can legitimately take longer than AT
// commands because the adapter waits for the vehicle.
const (
	atCommandTimeout  = 2 * time.Second
	resetTimeout      = 5 * time.Second
	busRequestTimeout = 5 * time.Second
	probeTimeout      = 8 * time.Second

	interCommandDelay = 100 * time.Millisecond
	resetSettleDelay  = 1 * time.Second
)

// initStep is one entry of the ordered initialization sequence.
type initStep struct {
	Name    string
	Request CommandRequest
	// Banner steps accept the version banner instead of OK.
	ExpectBanner bool
}

// initSequence returns the ordered setup commands. Echo must be disabled
// first after the reset because ATZ restores factory echo-on.
func initSequence() []initStep {
	return []initStep{
		{Name: "reset", Request: CommandRequest{Text: AT_COMMANDS.RESET, Timeout: resetTimeout, SettleDelay: resetSettleDelay}, ExpectBanner: true},
		{Name: "echo_off", Request: CommandRequest{Text: AT_COMMANDS.ECHO_OFF, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "linefeeds_off", Request: CommandRequest{Text: AT_COMMANDS.LINEFEEDS_OFF, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "spaces_off", Request: CommandRequest{Text: AT_COMMANDS.SPACES_OFF, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "headers_off", Request: CommandRequest{Text: AT_COMMANDS.HEADERS_OFF, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "auto_format_off", Request: CommandRequest{Text: AT_COMMANDS.AUTO_FORMAT_OFF, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "flow_control_on", Request: CommandRequest{Text: AT_COMMANDS.FLOW_CONTROL_ON, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "timeout_set", Request: CommandRequest{Text: AT_COMMANDS.TIMEOUT_SET, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
		{Name: "protocol_auto", Request: CommandRequest{Text: AT_COMMANDS.PROTOCOL_AUTO, Timeout: atCommandTimeout, SettleDelay: interCommandDelay}},
	}
}

// InitStepError reports which setup command failed so reconnect logging can
// point at the exact step.
type InitStepError struct {
	Step     string
	Response string
	Err      error
}

func (e *InitStepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("init step %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("init step %s failed: unexpected response %q", e.Step, e.Response)
}

func (e *InitStepError) Unwrap() error {
	return e.Err
}

// PidCommand formats a Mode 01 request for a single PID.
func PidCommand(pid byte) string {
	return fmt.Sprintf("01%02X", pid)
}

// IdentifierCommand formats a Mode 22 read-data-by-identifier request.
func IdentifierCommand(did uint16) string {
	return fmt.Sprintf("22%04X", did)
}

// HeaderCommand formats the ATSH command selecting a CAN request header.
func HeaderCommand(header string) string {
	return AT_COMMANDS.SET_HEADER_PREFIX + header
}

// Bus service commands without parameters.
const (
	ReadCodesCommand  = "03"
	ClearCodesCommand = "04"
)
