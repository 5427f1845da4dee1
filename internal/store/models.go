package store

import "time"

const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Turn is one persisted message of a conversation. Rows are append-only;
// (conversation_id, seq) is unique and seq is contiguous from 1 because the
// conversation's state machine is the only writer.
type Turn struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(64);not null;index:uniq_turn_conv_seq,unique,priority:1" json:"conversation_id"`
	Seq            uint64    `gorm:"not null;index:uniq_turn_conv_seq,unique,priority:2" json:"seq"`
	Speaker        string    `gorm:"type:varchar(16);not null" json:"speaker"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "conversation_turns" }

// RollingSummary is the compacted digest of turns already folded out of the
// in-memory history. At most one row per conversation; overwritten in place.
type RollingSummary struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"conversation_id"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (RollingSummary) TableName() string { return "conversation_summaries" }
