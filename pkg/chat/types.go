package chat

import "time"

// QueryRequest is the body posted to the chat endpoint.
type QueryRequest struct {
	Input        string       `json:"input"`
	MemoryConfig MemoryConfig `json:"memory_config"`
}

// MemoryConfig selects the conversation memory on the backend.
type MemoryConfig struct {
	Configurable ConfigurableMemory `json:"configurable"`
}

// ConfigurableMemory names the thread whose memory is used.
type ConfigurableMemory struct {
	ThreadID string `json:"thread_id"`
}

// ChunkResponse is the payload of a "chunk" event.
type ChunkResponse struct {
	// Content is nil when the chunk carries no content field.
	Content *string    `json:"content"`
	Meta    *ChunkMeta `json:"meta,omitempty"`
}

// ChunkMeta is the model metadata the backend attaches to a chunk.
type ChunkMeta struct {
	ThreadID            string   `json:"thread_id"`
	LangGraphStep       int      `json:"langgraph_step"`
	LangGraphNode       string   `json:"langgraph_node"`
	LangGraphTriggers   []string `json:"langgraph_triggers"`
	LangGraphPath       []string `json:"langgraph_path"`
	LangGraphCheckpoint string   `json:"langgraph_checkpoint_ns"`
	CheckpointNS        string   `json:"checkpoint_ns"`
	Provider            string   `json:"ls_provider"`
	ModelName           string   `json:"ls_model_name"`
	ModelType           string   `json:"ls_model_type"`
	Temperature         float64  `json:"ls_temperature"`
	MaxTokens           int      `json:"ls_max_tokens"`
}

// Message is one chat message as shown to the user.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
