package session

import (
	"fmt"

	"github.com/posixpascal/discourse-piratenlogin/internal/utils"
)

// GenerateID generates a cryptographically secure session ID.
// 32 bytes = 256 bits of entropy.
func GenerateID() (string, error) {
	const size = 32

	id, err := utils.RandomString(size)
	if err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return id, nil
}
