package domain

import "fmt"

// ResourceType identifies a metered capability with its own ledger.
type ResourceType string

const (
	// ResourceAICall counts AI-generated text requests.
	ResourceAICall ResourceType = "AI_CALL"
	// ResourceVoiceSecond counts seconds of voice transcription.
	ResourceVoiceSecond ResourceType = "VOICE_SECOND"
)

// ResourceTypes lists every metered resource, in a stable order.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceAICall, ResourceVoiceSecond}
}

// IsValid checks if the resource type is known.
func (r ResourceType) IsValid() bool {
	return r == ResourceAICall || r == ResourceVoiceSecond
}

// ParseResourceType validates a raw resource name.
func ParseResourceType(s string) (ResourceType, error) {
	r := ResourceType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: unknown resource type %q", ErrInvalidRequest, s)
	}
	return r, nil
}
