package link

// Block check characters. Both the header (BCC1) and the payload (BCC2)
// are protected by a plain XOR over the covered bytes.

// HeaderChecksum returns BCC1 for the given address and control bytes
func HeaderChecksum(address, control byte) byte {
	return address ^ control
}

// CalculateBCC returns the XOR of all bytes in data. An empty slice yields 0.
func CalculateBCC(data []byte) byte {
	var bcc byte
	for _, b := range data {
		bcc ^= b
	}
	return bcc
}

// VerifyBCC verifies that the last byte of data is the BCC of the bytes
// before it
func VerifyBCC(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	return CalculateBCC(data[:len(data)-1]) == data[len(data)-1]
}

// AppendBCC appends the BCC to data and returns a new slice
func AppendBCC(data []byte) []byte {
	result := make([]byte, len(data)+1)
	copy(result, data)
	result[len(data)] = CalculateBCC(data)
	return result
}
