package database

import (
	"context"
	"iter"
	"time"

	"github.com/thereayou/groupchat/internal/models"
)

const historyBatch = 100

// AppendMessage adds message to the end of its channel's log. The store
// assigns Seq, which defines the order of the log.
func (d *Database) AppendMessage(ctx context.Context, message *models.Message) error {
	var n int64
	if err := d.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", message.ChannelID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return models.ErrChannelNotFound
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.Kind == "" {
		message.Kind = models.KindText
	}
	message.Seq = 0
	return d.db.WithContext(ctx).Create(message).Error
}

// RecentMessages returns up to limit messages older than beforeSeq, oldest
// first. A zero beforeSeq starts from the newest message.
func (d *Database) RecentMessages(ctx context.Context, channelID models.ID, limit int, beforeSeq uint64) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}

	err := query.Order("seq DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ChatHistory walks a channel's log from the oldest message on, fetching it
// in batches. The sequence can be ranged over again to restart from the top.
func (d *Database) ChatHistory(ctx context.Context, channelID models.ID) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		var after uint64
		for {
			var batch []models.Message
			err := d.db.WithContext(ctx).
				Where("channel_id = ? AND seq > ?", channelID, after).
				Order("seq ASC").
				Limit(historyBatch).
				Find(&batch).Error
			if err != nil {
				yield(models.Message{}, err)
				return
			}
			for _, m := range batch {
				if !yield(m, nil) {
					return
				}
				after = m.Seq
			}
			if len(batch) < historyBatch {
				return
			}
		}
	}
}
