// Package uuid provides run id generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a UUIDv7 string. V7 ids sort by creation time, so run ids
// in the log file order by start.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
