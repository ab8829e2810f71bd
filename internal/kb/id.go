package kb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// idPattern matches record ids: PREFIX-YYYYMMDDHHMMSS-xxxx with a four
// character lowercase hex suffix.
var idPattern = regexp.MustCompile(`^(BUG|REQ|DEC)-\d{14}-[a-f0-9]{4}$`)

// NewID generates a record id for the given kind, e.g.
// BUG-20260826153000-a1b2. The timestamp gives rough ordering and the
// random suffix breaks same-second collisions.
func NewID(kind Kind) string {
	return NewIDAt(kind, time.Now())
}

// NewIDAt generates a record id with an explicit timestamp, for tests.
func NewIDAt(kind Kind, at time.Time) string {
	suffix := make([]byte, 2)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%s-%s", kind.Prefix(), at.Format("20060102150405"), hex.EncodeToString(suffix))
}

// validateID checks the id shape and that the prefix matches the kind.
func validateID(id string, kind Kind) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id %q does not match PREFIX-timestamp-suffix format", id)
	}
	if id[:3] != kind.Prefix() {
		return fmt.Errorf("id %q has wrong prefix for %s record", id, kind)
	}
	return nil
}

// KindForID infers the record kind from an id prefix.
func KindForID(id string) (Kind, error) {
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("malformed record id %q", id)
	}
	switch id[:3] {
	case "BUG":
		return KindBug, nil
	case "REQ":
		return KindRequirement, nil
	case "DEC":
		return KindDecision, nil
	}
	return "", fmt.Errorf("malformed record id %q", id)
}
