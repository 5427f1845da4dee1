package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nisheshk/durable-chatbot/internal/store/redisstore"
)

const (
	writeAttempts    = 3
	baseBackoff      = 200 * time.Millisecond
	defaultPollLimit = 50
	maxPollLimit     = 200
)

// Gateway is the append-only writer for turns and the upsert path for rolling
// summaries. Transient storage errors are retried with bounded backoff;
// exhaustion surfaces as ErrUnavailable.
type Gateway struct {
	db    *gorm.DB
	cache *redisstore.Store // optional; nil disables the summary cache
}

func NewGateway(db *gorm.DB, cache *redisstore.Store) *Gateway {
	return &Gateway{db: db, cache: cache}
}

// AppendTurn inserts a turn. A duplicate (conversation_id, seq) returns
// ErrConflict immediately and is never retried.
func (g *Gateway) AppendTurn(ctx context.Context, t *Turn) error {
	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		err = g.db.WithContext(ctx).Create(t).Error
		if err == nil {
			return nil
		}
		if isDuplicate(err) {
			return fmt.Errorf("%w: conversation=%s seq=%d", ErrConflict, t.ConversationID, t.Seq)
		}
		if attempt == writeAttempts-1 || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(baseBackoff << attempt):
		case <-ctx.Done():
		}
	}
	return fmt.Errorf("%w: append turn: %v", ErrUnavailable, err)
}

// UpsertSummary creates or overwrites the one summary row per conversation.
func (g *Gateway) UpsertSummary(ctx context.Context, conversationID, summary string) error {
	row := &RollingSummary{
		ConversationID: conversationID,
		Summary:        summary,
		UpdatedAt:      time.Now(),
	}

	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "updated_at"}),
		}).Create(row).Error
		if err == nil {
			g.cacheSummary(ctx, conversationID, summary)
			return nil
		}
		if attempt == writeAttempts-1 || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(baseBackoff << attempt):
		case <-ctx.Done():
		}
	}
	return fmt.Errorf("%w: upsert summary: %v", ErrUnavailable, err)
}

// LoadHistory returns all turns for a conversation in ascending seq order.
func (g *Gateway) LoadHistory(ctx context.Context, conversationID string) ([]Turn, error) {
	var turns []Turn
	if err := g.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrUnavailable, err)
	}
	return turns, nil
}

// LoadSummary returns the rolling summary, if one exists.
func (g *Gateway) LoadSummary(ctx context.Context, conversationID string) (string, bool, error) {
	if g.cache != nil {
		if s, hit, err := g.cache.GetSummary(ctx, conversationID); err == nil && hit {
			return s, true, nil
		}
	}

	var row RollingSummary
	err := g.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: load summary: %v", ErrUnavailable, err)
	}
	g.cacheSummary(ctx, conversationID, row.Summary)
	return row.Summary, true, nil
}

// ListTurnsSince returns turns with seq > sinceSeq in ascending order. This is
// the poll read path; it is a plain idempotent range scan.
func (g *Gateway) ListTurnsSince(ctx context.Context, conversationID string, sinceSeq uint64, limit int) ([]Turn, error) {
	if limit <= 0 || limit > maxPollLimit {
		limit = defaultPollLimit
	}
	var turns []Turn
	if err := g.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, sinceSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("%w: list turns: %v", ErrUnavailable, err)
	}
	return turns, nil
}

// isDuplicate matches unique-key violations across drivers; not every
// dialector translates to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint")
}

func (g *Gateway) cacheSummary(ctx context.Context, conversationID, summary string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SetSummary(ctx, conversationID, summary); err != nil {
		log.Printf("summary cache set failed conversation=%s err=%v", conversationID, err)
	}
}
