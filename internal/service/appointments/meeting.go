package appointments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const DefaultMeetingBaseURL = "https://meet.jit.si"

// MeetingLinks renders opaque meeting-room links from random tokens.
type MeetingLinks struct {
	baseURL string
}

func NewMeetingLinks(baseURL string) MeetingLinks {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultMeetingBaseURL
	}
	return MeetingLinks{baseURL: baseURL}
}

// Generate returns <base>/carebridge-<32 hex chars>; the token is a random
// UUIDv4 carrying 122 bits of entropy.
func (m MeetingLinks) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("meeting token: %w", err)
	}
	return m.baseURL + "/carebridge-" + strings.ReplaceAll(id.String(), "-", ""), nil
}
