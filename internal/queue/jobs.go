package queue

import (
	"time"

	"github.com/google/uuid"
)

// NewAbsenceJob builds a TypeAbsences message for date (YYYY-MM-DD).
func NewAbsenceJob(date string) Message {
	return Message{
		ID:         uuid.NewString(),
		Type:       TypeAbsences,
		Body:       []byte(date),
		EnqueuedAt: time.Now().UTC(),
	}
}
