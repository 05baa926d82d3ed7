package database

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/groupchat/internal/models"
	"gorm.io/gorm"
)

// GroupPatch carries the mutable scalar fields of a group. Nil fields are
// left untouched.
type GroupPatch struct {
	Name *string
}

// CreateGroup stores group with founder as its sole admin and member.
func (d *Database) CreateGroup(ctx context.Context, group *models.Group, founder models.ID) error {
	if group.Name == "" {
		return models.ErrEmptyName
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", founder).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return models.ErrAdminNotFound
		}

		group.ID = models.NewID()
		group.Admins = models.IDs{founder}
		group.Members = models.IDs{founder}
		group.JoinRequests = models.IDs{}
		if group.Channels == nil {
			group.Channels = models.IDs{}
		}
		group.CreatedBy = founder
		if group.CreatedAt.IsZero() {
			group.CreatedAt = time.Now()
		}
		return tx.Create(group).Error
	})
}

func (d *Database) GetGroup(ctx context.Context, id models.ID) (*models.Group, error) {
	return find[models.Group](ctx, d.db, models.ErrGroupNotFound, "id = ?", id)
}

// UpdateGroup merges patch into the group and returns the matched row count;
// zero means the group does not exist.
func (d *Database) UpdateGroup(ctx context.Context, id models.ID, patch GroupPatch) (int64, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return 0, models.ErrEmptyName
		}
		fields["name"] = *patch.Name
	}
	if len(fields) == 0 {
		var n int64
		err := d.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", id).Count(&n).Error
		return n, err
	}
	res := d.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected, res.Error
}

func (d *Database) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := d.db.WithContext(ctx).Order("created_at").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroupsForUser returns the groups userID belongs to or has asked to join.
func (d *Database) ListGroupsForUser(ctx context.Context, userID models.ID) ([]models.Group, error) {
	groups, err := d.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := groups[:0]
	for _, g := range groups {
		if g.Members.Contains(userID) || g.JoinRequests.Contains(userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (d *Database) mutateGroup(ctx context.Context, id models.ID, fn func(*models.Group) error) (*models.Group, error) {
	return mutate(ctx, d.db, id, models.ErrGroupNotFound, fn)
}

func (d *Database) RequestGroupJoin(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		return g.RequestJoin(userID)
	})
	return err
}

func (d *Database) ApproveGroupJoin(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		return g.ApproveJoin(userID)
	})
	return err
}

func (d *Database) RejectGroupJoin(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		return g.RejectJoin(userID)
	})
	return err
}

func (d *Database) AddGroupAdmin(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		return g.AddAdmin(userID)
	})
	return err
}

func (d *Database) RemoveGroupAdmin(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		g.RemoveAdmin(userID)
		return nil
	})
	return err
}

// RemoveGroupMember fails with ErrNotMember when userID was not a member.
func (d *Database) RemoveGroupMember(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		return g.RemoveMember(userID)
	})
	return err
}

// PurgeUserFromGroup removes userID from members, admins and join requests.
// Unlike RemoveGroupMember it succeeds when nothing was present.
func (d *Database) PurgeUserFromGroup(ctx context.Context, groupID, userID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		if !g.Purge(userID) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (d *Database) AddGroupChannel(ctx context.Context, groupID, channelID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		g.Channels.Add(channelID)
		return nil
	})
	return err
}

func (d *Database) RemoveGroupChannel(ctx context.Context, groupID, channelID models.ID) error {
	_, err := d.mutateGroup(ctx, groupID, func(g *models.Group) error {
		g.Channels.Remove(channelID)
		return nil
	})
	return err
}

// DeleteGroup removes the group together with all of its channels and their
// messages.
func (d *Database) DeleteGroup(ctx context.Context, id models.ID) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		err := tx.First(&group, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrGroupNotFound
		}
		if err != nil {
			return err
		}

		sub := tx.Model(&models.Channel{}).Select("id").Where("group_id = ?", id)
		if err := tx.Where("channel_id IN (?)", sub).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.Channel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
}
