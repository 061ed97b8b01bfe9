package smsverify

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// DefaultCodeCharacters are the digits 1 to 9, without 0.
const DefaultCodeCharacters = "123456789"

// GenerateCode returns a random code of the given length, every character drawn
// uniformly from characters. A length <= 0 uses the configured CodeLength and an
// empty characters uses DefaultCodeCharacters.
func (m *Manager) GenerateCode(length int, characters string) (string, error) {
	if length <= 0 {
		length = m.config.CodeLength
	}
	if length <= 0 {
		length = defaultCodeLength
	}
	return generateCode(length, characters)
}

func generateCode(length int, characters string) (string, error) {
	if characters == "" {
		characters = DefaultCodeCharacters
	}
	alphabet := []rune(characters)
	max := big.NewInt(int64(len(alphabet)))

	var code strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code.WriteRune(alphabet[n.Int64()])
	}
	return code.String(), nil
}
