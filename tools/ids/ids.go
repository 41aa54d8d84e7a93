package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Generate returns a fresh opaque id for rooms and connections.
func Generate() string {
	return uuid.New().String()
}

// GenerateShort returns a compact id without dashes, used where the id ends
// up in log lines and map keys rather than client payloads.
func GenerateShort() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
