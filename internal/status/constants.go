// internal/status/constants.go
package status

// Module Status Block layout constants.
// These values define the mirror layout and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerModule is the fixed number of registers per module.
const SlotsPerModule = 32

// ---- STATUS SLOTS ----

const (
	SlotHealthCode     = 0
	SlotLastErrorCode  = 1
	SlotSecondsInError = 2
)

// ---- IDENTITY / FLAGS ----

const (
	SlotAddress = 3
	SlotState   = 4

	// SlotFlags: bit0 voltages stale, bit1 summary stale,
	// high byte = module status byte.
	SlotFlags = 5
)

const (
	FlagVoltagesStale uint16 = 1 << 0
	FlagSummaryStale  uint16 = 1 << 1
)

// ---- TELEMETRY ----

const (
	SlotCellStart = 6
	SlotCellCount = 12
	SlotMin       = SlotCellStart + SlotCellCount // 18
	SlotMax       = 19
	SlotAvg       = 20
	SlotLocations = 21 // max<<4 | min
	SlotTemp1     = 22
	SlotTemp2     = 23
)

// TelemetryStart..TelemetryEnd is rewritten on every cycle.
const (
	TelemetryStart = SlotAddress
	TelemetryEnd   = SlotTemp2
)

// ---- MODULE NAME ----

// Module name is always placed at the END of the block.
const (
	SlotNameStart = 24
	SlotNameSlots = 8
	SlotNameEnd   = SlotNameStart + SlotNameSlots - 1
)

// NameMaxChars is the maximum number of ASCII characters stored for a name.
const NameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a module whose last cycle fully succeeded.
const HealthOK uint16 = 1

// HealthError represents a transport failure (port, IO).
const HealthError uint16 = 2

// HealthStale represents a module answering badly or not at all.
const HealthStale uint16 = 3

// HealthDisabled represents a module that is not primed.
const HealthDisabled uint16 = 4
