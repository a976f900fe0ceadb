package utils

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random identifier for a realtime connection.
func NewID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}

	// Fallback to timestamp if the random source is unavailable.
	return "t" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
