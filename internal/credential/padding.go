package credential

import "fmt"

// AddPadding appends PKCS#7 padding. Aligned input gets a whole extra block.
func AddPadding(plaintext []byte, blockSize int) []byte {
	n := blockSize - len(plaintext)%blockSize

	out := make([]byte, len(plaintext)+n)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// RemovePadding strips and checks PKCS#7 padding.
func RemovePadding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid data")
	}

	c := data[len(data)-1]
	n := int(c)
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid PKCS7 data")
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != c {
			return nil, fmt.Errorf("invalid PKCS7 data")
		}
	}
	return data[:len(data)-n], nil
}
