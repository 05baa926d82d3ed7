package database

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/groupchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChannelPatch struct {
	Name *string
}

// CreateChannel stores channel under groupID. The owning group must exist;
// linking the channel into the group's channel set is the caller's job.
func (d *Database) CreateChannel(ctx context.Context, channel *models.Channel) error {
	if channel.Name == "" {
		return models.ErrEmptyName
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Group{}).Where("id = ?", channel.GroupID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return models.ErrGroupNotFound
		}

		channel.ID = models.NewID()
		if channel.Members == nil {
			channel.Members = models.IDs{}
		}
		channel.JoinRequests = models.IDs{}
		channel.Blacklist = models.IDs{}
		if channel.CreatedAt.IsZero() {
			channel.CreatedAt = time.Now()
		}
		return tx.Create(channel).Error
	})
}

func (d *Database) GetChannel(ctx context.Context, id models.ID) (*models.Channel, error) {
	return find[models.Channel](ctx, d.db, models.ErrChannelNotFound, "id = ?", id)
}

func (d *Database) UpdateChannel(ctx context.Context, id models.ID, patch ChannelPatch) (int64, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return 0, models.ErrEmptyName
		}
		fields["name"] = *patch.Name
	}
	if len(fields) == 0 {
		var n int64
		err := d.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", id).Count(&n).Error
		return n, err
	}
	res := d.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected, res.Error
}

// DeleteChannel removes the channel and its message log.
func (d *Database) DeleteChannel(ctx context.Context, id models.ID) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Channel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrChannelNotFound
		}
		return nil
	})
}

func (d *Database) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := d.db.WithContext(ctx).Order("created_at").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (d *Database) ListChannelsByGroup(ctx context.Context, groupID models.ID) ([]models.Channel, error) {
	var channels []models.Channel
	err := d.db.WithContext(ctx).Where("group_id = ?", groupID).Order("created_at").Find(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (d *Database) mutateChannel(ctx context.Context, id models.ID, fn func(*models.Channel) error) (*models.Channel, error) {
	return mutate(ctx, d.db, id, models.ErrChannelNotFound, fn)
}

// RequestChannelJoin records a pending request. userID must already be a
// member of the group that owns the channel.
func (d *Database) RequestChannelJoin(ctx context.Context, channelID, userID models.ID) error {
	channel, err := d.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	group, err := d.GetGroup(ctx, channel.GroupID)
	if err != nil {
		return err
	}
	if !group.IsMember(userID) {
		return models.ErrNotGroupMember
	}

	_, err = d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		return c.RequestJoin(userID)
	})
	return err
}

// ResolveChannelJoin settles a pending request. Approval re-checks that
// userID still belongs to the owning group, reading the group inside the same
// transaction that locks the channel.
func (d *Database) ResolveChannelJoin(ctx context.Context, channelID, userID models.ID, approve bool) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var channel models.Channel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&channel, "id = ?", channelID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrChannelNotFound
		}
		if err != nil {
			return err
		}

		if approve && channel.JoinRequests.Contains(userID) {
			var group models.Group
			err := tx.First(&group, "id = ?", channel.GroupID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrGroupNotFound
			}
			if err != nil {
				return err
			}
			if !group.IsMember(userID) {
				return models.ErrNotGroupMember
			}
		}

		if err := channel.ResolveJoin(userID, approve); err != nil {
			return err
		}
		return tx.Save(&channel).Error
	})
}

func (d *Database) AddChannelMember(ctx context.Context, channelID, userID models.ID) error {
	_, err := d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		return c.AddMember(userID)
	})
	return err
}

// BanFromChannel removes userID from members and blacklists it in a single
// write, so either both happen or neither does.
func (d *Database) BanFromChannel(ctx context.Context, channelID, userID models.ID) error {
	_, err := d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		return c.Ban(userID)
	})
	return err
}

// RemoveChannelMember reports whether userID was removed. Absence is not an
// error here, in contrast with RemoveGroupMember.
func (d *Database) RemoveChannelMember(ctx context.Context, channelID, userID models.ID) (bool, error) {
	_, err := d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		if !c.RemoveMember(userID) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WithdrawFromChannel removes userID from members and pending requests but
// keeps any ban. It reports whether userID was a member.
func (d *Database) WithdrawFromChannel(ctx context.Context, channelID, userID models.ID) (bool, error) {
	var wasMember bool
	_, err := d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		var changed bool
		wasMember, changed = c.Withdraw(userID)
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return wasMember, nil
}

// PurgeUserFromChannel drops every reference to userID, blacklist included.
func (d *Database) PurgeUserFromChannel(ctx context.Context, channelID, userID models.ID) error {
	_, err := d.mutateChannel(ctx, channelID, func(c *models.Channel) error {
		if !c.Purge(userID) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// IsChannelMember is a pure query; a missing channel yields false.
func (d *Database) IsChannelMember(ctx context.Context, channelID, userID models.ID) (bool, error) {
	channel, err := d.GetChannel(ctx, channelID)
	if errors.Is(err, models.ErrChannelNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return channel.IsMember(userID), nil
}
