package iebus

// Parity returns the XOR of the low bits of value.
func Parity(value uint16, bits int) uint8 {
	var p uint16
	for i := 0; i < bits; i++ {
		p ^= (value >> uint(i)) & 1
	}
	return uint8(p)
}

// CheckParity checks the parity bit of value.
func CheckParity(value uint16, bits int, parity uint8) bool {
	return Parity(value, bits) == parity&1
}
