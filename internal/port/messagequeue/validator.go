package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
// The status subject also carries plain text, so it is never validated.
func Validate(subject string, data []byte) error {
	if subject == SubjectWorking {
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case subject == SubjectEngineLifecycle:
		target = &EngineLifecyclePayload{}
	case subject == SubjectSynapseInbound:
		var p SynapseInboundPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.RemoteIP == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("remote_ip is required"))
		}
		return nil
	case subject == SubjectSynapseOutbound:
		target = &SynapseEnvelopePayload{}
	case strings.HasPrefix(subject, "models.") && strings.HasSuffix(subject, ".prediction"):
		// Overviews are free-form objects.
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return nil
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
