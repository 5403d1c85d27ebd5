package stream

import "encoding/json"

// chunkFrame is the subset of a chat completion chunk the parser reads.
// Both fields stay raw so that unexpected shapes are skipped rather than
// failing the whole frame.
type chunkFrame struct {
	Error   json.RawMessage `json:"error"`
	Choices json.RawMessage `json:"choices"`
}

// errorBody is the object form of the "error" field.
type errorBody struct {
	Message *string `json:"message"`
}

type chunkChoice struct {
	Delta struct {
		Content json.RawMessage `json:"content"`
	} `json:"delta"`
}
