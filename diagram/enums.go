package diagram

import (
	"encoding/json"
	"strings"
)

// NodeType identifies a node's behavior from the fixed vocabulary.
type NodeType string

// Node type constants mirror the executable step kinds of the editor:
//   - NodeStart: entry point of a diagram, output only
//   - NodePersonJob: LLM call executed by a persona
//   - NodeCondition: boolean branch with "true"/"false" outputs
//   - NodeCodeJob: inline code execution
//   - NodeAPIJob: external HTTP call
//   - NodeEndpoint: terminal sink, input only
//   - NodeDB: file or database read/write
//   - NodeUserResponse: interactive user prompt
//   - NodeHook: external side-effect trigger
//   - NodeNote: annotation, not executable
const (
	NodeStart        NodeType = "start"
	NodePersonJob    NodeType = "person_job"
	NodeCondition    NodeType = "condition"
	NodeCodeJob      NodeType = "code_job"
	NodeAPIJob       NodeType = "api_job"
	NodeEndpoint     NodeType = "endpoint"
	NodeDB           NodeType = "db"
	NodeUserResponse NodeType = "user_response"
	NodeHook         NodeType = "hook"
	NodeNote         NodeType = "note"
)

// String returns the string representation of the NodeType.
func (nt NodeType) String() string { return string(nt) }

// IsValid checks if the NodeType is one of the defined constants.
func (nt NodeType) IsValid() bool {
	switch nt {
	case NodeStart, NodePersonJob, NodeCondition, NodeCodeJob, NodeAPIJob,
		NodeEndpoint, NodeDB, NodeUserResponse, NodeHook, NodeNote:
		return true
	default:
		return false
	}
}

// HandleDirection distinguishes input from output connection points.
type HandleDirection string

const (
	// DirectionInput marks a handle that receives data.
	DirectionInput HandleDirection = "input"
	// DirectionOutput marks a handle that emits data.
	DirectionOutput HandleDirection = "output"
)

// String returns the string representation of the HandleDirection.
func (hd HandleDirection) String() string { return string(hd) }

// IsValid checks if the HandleDirection is one of the defined constants.
func (hd HandleDirection) IsValid() bool {
	return hd == DirectionInput || hd == DirectionOutput
}

// DataType tags the kind of value a handle carries. DataAny is
// wildcard-compatible with every other type.
type DataType string

// Data type constants for handle compatibility checks.
const (
	DataAny     DataType = "any"
	DataString  DataType = "string"
	DataNumber  DataType = "number"
	DataBoolean DataType = "boolean"
	DataObject  DataType = "object"
	DataArray   DataType = "array"
)

// String returns the string representation of the DataType.
func (dt DataType) String() string { return string(dt) }

// IsValid checks if the DataType is one of the defined constants.
func (dt DataType) IsValid() bool {
	switch dt {
	case DataAny, DataString, DataNumber, DataBoolean, DataObject, DataArray:
		return true
	default:
		return false
	}
}

// UnmarshalJSON normalizes legacy uppercase data type tags ("ANY", "STRING")
// to their canonical lowercase form at the data-model boundary.
func (dt *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*dt = DataType(strings.ToLower(s))
	return nil
}

// HandlePosition is the visual side of the node a handle attaches to.
type HandlePosition string

// Handle position constants.
const (
	PositionLeft   HandlePosition = "left"
	PositionRight  HandlePosition = "right"
	PositionTop    HandlePosition = "top"
	PositionBottom HandlePosition = "bottom"
)

// String returns the string representation of the HandlePosition.
func (hp HandlePosition) String() string { return string(hp) }

// IsValid checks if the HandlePosition is one of the defined constants.
func (hp HandlePosition) IsValid() bool {
	switch hp {
	case PositionLeft, PositionRight, PositionTop, PositionBottom:
		return true
	default:
		return false
	}
}

// ContentType describes the payload an arrow transports.
type ContentType string

// Content type constants.
const (
	ContentRawText      ContentType = "raw_text"
	ContentVariable     ContentType = "variable"
	ContentConversation ContentType = "conversation_state"
	ContentObject       ContentType = "object"
	ContentBinary       ContentType = "binary"
)

// String returns the string representation of the ContentType.
func (ct ContentType) String() string { return string(ct) }

// IsValid checks if the ContentType is one of the defined constants. The empty
// value is valid: arrows without explicit content default at export time.
func (ct ContentType) IsValid() bool {
	switch ct {
	case "", ContentRawText, ContentVariable, ContentConversation, ContentObject, ContentBinary:
		return true
	default:
		return false
	}
}

// LLMService identifies the provider backing a persona.
type LLMService string

// LLM service constants.
const (
	ServiceOpenAI    LLMService = "openai"
	ServiceAnthropic LLMService = "anthropic"
	ServiceGemini    LLMService = "gemini"
	ServiceOllama    LLMService = "ollama"
)

// String returns the string representation of the LLMService.
func (ls LLMService) String() string { return string(ls) }

// IsValid checks if the LLMService is one of the defined constants.
func (ls LLMService) IsValid() bool {
	switch ls {
	case ServiceOpenAI, ServiceAnthropic, ServiceGemini, ServiceOllama:
		return true
	default:
		return false
	}
}
