package store

import "time"

// Message roles. Tool rows carry no user-visible content.
const (
	RoleUser           = "user"
	RoleAssistant      = "assistant"
	RoleToolCall       = "tool_call"
	RoleToolCallResult = "tool_call_result"
)

type Conversation struct {
	ID                int64     `json:"id"`
	ThreadID          string    `json:"thread_id"` // UUID, external identifier
	UserID            string    `json:"user_id"`
	Title             string    `json:"title"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	TotalTokens       int64     `json:"total_tokens"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"` // plain text, or JSON for tool rows
	CreatedAt time.Time `json:"created_at"`
}

// Displayable reports whether the message should be shown in a transcript.
func (m Message) Displayable() bool {
	if m.Role == RoleToolCall || m.Role == RoleToolCallResult {
		return false
	}
	for _, r := range m.Content {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

type TokenUsage struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	ThreadID     string    `json:"thread_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	RequestType  string    `json:"request_type"` // "chat" or "tool_call"
	CreatedAt    time.Time `json:"created_at"`
}

// Vehicle is a row of the local vehicle directory, keyed by the telematics id.
type Vehicle struct {
	SamsaraID    string    `json:"id"`
	Name         string    `json:"name"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Year         string    `json:"year,omitempty"`
	LicensePlate string    `json:"license_plate,omitempty"`
	VIN          string    `json:"vin,omitempty"`
	TagIDs       []string  `json:"tag_ids,omitempty"`
	DataHash     string    `json:"-"`
	SyncedAt     time.Time `json:"synced_at"`
}

type TagMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Tag struct {
	SamsaraID   string      `json:"id"`
	Name        string      `json:"name"`
	ParentTagID string      `json:"parent_tag_id,omitempty"` // empty for root tags
	Vehicles    []TagMember `json:"vehicles,omitempty"`
	Drivers     []TagMember `json:"drivers,omitempty"`
	Assets      []TagMember `json:"assets,omitempty"`
	DataHash    string      `json:"-"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (t Tag) IsRoot() bool { return t.ParentTagID == "" }

type TagFilter struct {
	Search       string
	WithVehicles bool
	Limit        int
}

type TagSummary struct {
	TotalTags        int `json:"total_tags"`
	RootTags         int `json:"root_tags"`
	ChildTags        int `json:"child_tags"`
	TagsWithVehicles int `json:"tags_with_vehicles"`
	TagsWithDrivers  int `json:"tags_with_drivers"`
}

type VehicleFilter struct {
	Search string
	IDs    []string
	Limit  int
}
