package iebus

// Bit timing in microseconds.
const (
	StartBitTotalUs     int64 = 190
	StartBitHighUs      int64 = 171
	StartBitLowUs             = StartBitTotalUs - StartBitHighUs
	StartBitToleranceUs int64 = 20

	DataBitTotalUs int64 = 39
	DataBit0HighUs int64 = 33
	DataBit0LowUs        = DataBitTotalUs - DataBit0HighUs
	DataBit1HighUs int64 = 20
	DataBit1LowUs        = DataBitTotalUs - DataBit1HighUs
)

// Default bounds of blocking waits in microseconds.
const (
	// DefaultWaitTimeoutUs bounds a single wait for a level transition.
	DefaultWaitTimeoutUs int64 = 5 * StartBitTotalUs
	// DefaultBusFreeTimeoutUs bounds the wait for an idle bus before writing.
	DefaultBusFreeTimeoutUs int64 = 20000
)

func isStartBitWidth(us int64) bool {
	return us >= StartBitHighUs-StartBitToleranceUs && us <= StartBitHighUs+StartBitToleranceUs
}

// decodeBit picks the symbol with the nearest canonical width.
// An exact tie resolves to 0.
func decodeBit(us int64) uint8 {
	if abs(us-DataBit1HighUs) < abs(us-DataBit0HighUs) {
		return 1
	}
	return 0
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
