package security

import (
	"encoding/json"
	"fmt"
)

// ValidationConfig controls inbound frame checks.
type ValidationConfig struct {
	// MaxFrameSize in bytes; 0 disables the size check.
	MaxFrameSize int
	// TypeField is the JSON field that identifies the frame's channel.
	// Hyperliquid uses "channel"; the default is "type".
	TypeField string
}

type frameValidator struct {
	config ValidationConfig
}

// NewFrameValidator builds a validator for inbound venue frames.
func NewFrameValidator(config ValidationConfig) FrameValidator {
	return &frameValidator{config: config}
}

func (fv *frameValidator) ValidateFrame(frame []byte) error {
	if fv.config.MaxFrameSize > 0 && len(frame) > fv.config.MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes (max: %d)",
			len(frame), fv.config.MaxFrameSize)
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(frame, &base); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	typeField := fv.config.TypeField
	if typeField == "" {
		typeField = "type"
	}

	raw, ok := base[typeField]
	if !ok {
		return fmt.Errorf("missing frame %s field", typeField)
	}

	var channel string
	if err := json.Unmarshal(raw, &channel); err != nil {
		return fmt.Errorf("invalid frame %s field: %w", typeField, err)
	}
	if channel == "" {
		return fmt.Errorf("empty frame %s field", typeField)
	}

	return nil
}
