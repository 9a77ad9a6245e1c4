package notification

import (
	"errors"
	"strings"
)

// Notification categories, sent in the data payload.
const (
	CategoryConnections = "connections"
)

// Domain errors
var (
	ErrInvalidFamily = errors.New("family ID is required")
)

// FamilyTopic returns the messaging topic every device of a family subscribes to.
// Topic names may only contain [a-zA-Z0-9-_.~%].
func FamilyTopic(familyID string) string {
	var b strings.Builder
	b.WriteString("family-")
	for _, r := range familyID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune("-_.~", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
