package agent

import (
	"encoding/json"
	"fmt"
)

// Reply is the decoded agent payload. The agent's schema is loose: every
// field except the top-level document itself is optional, and a missing
// field decodes to its zero value rather than failing the turn.
type Reply struct {
	CharacterKey  string
	CharacterName string
	Response      string
	Emotion       string
	Intent        string

	VoiceConfig map[string]any
	RouterInfo  map[string]any

	RagEnhanced   bool
	CotEnhanced   bool
	CotStepsCount int
	CotAnalysis   string

	AudioURL    string
	AudioBase64 string

	ImageURL         string
	ImageBase64      string
	ImageDescription string
	EnhancedPrompt   string
}

// decodeReply parses the raw agent response. Only a malformed top-level
// document is an error; malformed or absent sub-fields are skipped.
func decodeReply(raw []byte) (*Reply, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	reply := &Reply{
		CharacterKey:  stringField(doc, "character_id"),
		CharacterName: stringField(doc, "character_name"),
		Response:      stringField(doc, "response"),
		Emotion:       stringField(doc, "emotion"),
		Intent:        stringField(doc, "intent"),

		VoiceConfig: mapField(doc, "voice_config"),
		RouterInfo:  mapField(doc, "router_info"),

		RagEnhanced: boolField(doc, "rag_enhanced"),

		AudioURL:    stringField(doc, "audio_url"),
		AudioBase64: stringField(doc, "audio_base64"),

		ImageURL:         stringField(doc, "image_url"),
		ImageBase64:      stringField(doc, "image_base64"),
		ImageDescription: stringField(doc, "image_description"),
		EnhancedPrompt:   stringField(doc, "enhanced_prompt"),
	}

	// Chain-of-reasoning metadata lives under context.cot_reasoning.
	if cot := mapField(mapField(doc, "context"), "cot_reasoning"); cot != nil {
		reply.CotEnhanced = true
		reply.CotStepsCount = intField(cot, "steps_count")
		reply.CotAnalysis = stringField(cot, "analysis")
	}

	return reply, nil
}

func stringField(doc map[string]any, key string) string {
	if doc == nil {
		return ""
	}
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

func boolField(doc map[string]any, key string) bool {
	if doc == nil {
		return false
	}
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return false
}

func intField(doc map[string]any, key string) int {
	if doc == nil {
		return 0
	}
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

func mapField(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return nil
	}
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	return nil
}
