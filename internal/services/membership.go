package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thereayou/groupchat/internal/models"
)

// MembershipService coordinates operations that span users, groups and
// channels. It holds no state of its own.
type MembershipService struct {
	users    IdentityStore
	groups   GroupRegistry
	channels ChannelRegistry
	relay    Relay
	cache    UserCache
	log      *slog.Logger
}

func NewMembershipService(users IdentityStore, groups GroupRegistry, channels ChannelRegistry, relay Relay, cache UserCache) *MembershipService {
	if relay == nil {
		relay = nopRelay{}
	}
	if cache == nil {
		cache = nopCache{}
	}
	return &MembershipService{
		users:    users,
		groups:   groups,
		channels: channels,
		relay:    relay,
		cache:    cache,
		log:      slog.Default().With("component", "membership"),
	}
}

// resolve loads both ends of a (group, user) pair, collapsing either miss
// into ErrGroupOrUserNotFound.
func (s *MembershipService) resolve(ctx context.Context, groupID, userID models.ID) (*models.Group, *models.User, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, models.ErrGroupOrUserNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, models.ErrGroupOrUserNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return group, user, nil
}

func (s *MembershipService) PromoteUser(ctx context.Context, userID models.ID, role models.Role) error {
	return s.users.AddRole(ctx, userID, role)
}

func (s *MembershipService) ValidateUser(ctx context.Context, userID models.ID) error {
	return s.users.ValidateUser(ctx, userID)
}

// AddGroupAdmin grants userID admin rights on the group, then makes sure the
// user carries the GroupAdmin role. The admin entry is written first; a crash
// before the role grant is healed by the next promotion attempt.
func (s *MembershipService) AddGroupAdmin(ctx context.Context, groupID, userID models.ID) error {
	_, user, err := s.resolve(ctx, groupID, userID)
	if err != nil {
		return err
	}

	c := cascade{name: "add group admin", log: s.log, steps: []step{
		{"group admins", func(ctx context.Context) error {
			return s.groups.AddGroupAdmin(ctx, groupID, userID)
		}},
		{"user groups", func(ctx context.Context) error {
			return s.users.AddUserGroup(ctx, userID, groupID)
		}},
		{"user role", func(ctx context.Context) error {
			if user.HasRole(models.RoleGroupAdmin) {
				return nil
			}
			err := s.users.AddRole(ctx, userID, models.RoleGroupAdmin)
			if errors.Is(err, models.ErrAlreadyHasRole) {
				return nil
			}
			return err
		}},
	}}
	return c.run(ctx)
}

func (s *MembershipService) RemoveGroupAdmin(ctx context.Context, groupID, userID models.ID) error {
	return s.groups.RemoveGroupAdmin(ctx, groupID, userID)
}

// LeaveGroup removes userID from the group, then drops the group from the
// user's record, then withdraws the user from every channel of the group,
// pending channel requests included. Channel bans stay in place.
func (s *MembershipService) LeaveGroup(ctx context.Context, userID, groupID models.ID) error {
	return s.leaveCascade(groupID, userID).run(ctx)
}

// RemoveMemberFromGroup is the admin-initiated form of LeaveGroup.
func (s *MembershipService) RemoveMemberFromGroup(ctx context.Context, groupID, userID models.ID) error {
	if _, _, err := s.resolve(ctx, groupID, userID); err != nil {
		return err
	}
	return s.leaveCascade(groupID, userID).run(ctx)
}

func (s *MembershipService) leaveCascade(groupID, userID models.ID) cascade {
	return cascade{name: "leave group", log: s.log, steps: []step{
		{"group members", func(ctx context.Context) error {
			return s.groups.RemoveGroupMember(ctx, groupID, userID)
		}},
		{"user groups", func(ctx context.Context) error {
			return s.users.RemoveUserGroup(ctx, userID, groupID)
		}},
		{"channel members", func(ctx context.Context) error {
			channels, err := s.channels.ListChannelsByGroup(ctx, groupID)
			if err != nil {
				return err
			}
			var errs []error
			for _, ch := range channels {
				wasMember, err := s.channels.WithdrawFromChannel(ctx, ch.ID, userID)
				if err != nil {
					errs = append(errs, fmt.Errorf("channel %s: %w", ch.ID, err))
					continue
				}
				if wasMember {
					s.relay.Evict(ch.ID, userID)
				}
			}
			return errors.Join(errs...)
		}},
	}}
}

// DeleteUser strips userID from every group and channel before deleting the
// identity record. Each step is idempotent, so a failed run can be retried.
func (s *MembershipService) DeleteUser(ctx context.Context, userID models.ID) error {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUserNotFound
		}
		return err
	}

	c := cascade{name: "delete user", log: s.log, steps: []step{
		{"groups", func(ctx context.Context) error {
			groups, err := s.groups.ListGroups(ctx)
			if err != nil {
				return err
			}
			for _, g := range groups {
				if !g.Members.Contains(userID) && !g.Admins.Contains(userID) && !g.JoinRequests.Contains(userID) {
					continue
				}
				if err := s.groups.PurgeUserFromGroup(ctx, g.ID, userID); err != nil {
					return fmt.Errorf("group %s: %w", g.ID, err)
				}
			}
			return nil
		}},
		{"channels", func(ctx context.Context) error {
			channels, err := s.channels.ListChannels(ctx)
			if err != nil {
				return err
			}
			for _, ch := range channels {
				if !ch.Members.Contains(userID) && !ch.Blacklist.Contains(userID) && !ch.JoinRequests.Contains(userID) {
					continue
				}
				if err := s.channels.PurgeUserFromChannel(ctx, ch.ID, userID); err != nil {
					return fmt.Errorf("channel %s: %w", ch.ID, err)
				}
				s.relay.Evict(ch.ID, userID)
			}
			return nil
		}},
		{"identity", func(ctx context.Context) error {
			return s.users.DeleteUser(ctx, userID)
		}},
	}}
	if err := c.run(ctx); err != nil {
		return err
	}

	s.cache.Evict(ctx, userID)
	s.log.Info("user deleted", "user_id", userID)
	return nil
}

func (s *MembershipService) RequestJoinGroup(ctx context.Context, groupID, userID models.ID) error {
	if _, _, err := s.resolve(ctx, groupID, userID); err != nil {
		return err
	}
	return s.groups.RequestGroupJoin(ctx, groupID, userID)
}

// ApproveGroupJoin admits a pending user and records the group on the user.
func (s *MembershipService) ApproveGroupJoin(ctx context.Context, groupID, userID models.ID) error {
	c := cascade{name: "approve group join", log: s.log, steps: []step{
		{"group members", func(ctx context.Context) error {
			return s.groups.ApproveGroupJoin(ctx, groupID, userID)
		}},
		{"user groups", func(ctx context.Context) error {
			return s.users.AddUserGroup(ctx, userID, groupID)
		}},
	}}
	return c.run(ctx)
}

func (s *MembershipService) RejectGroupJoin(ctx context.Context, groupID, userID models.ID) error {
	return s.groups.RejectGroupJoin(ctx, groupID, userID)
}

func (s *MembershipService) RequestJoinChannel(ctx context.Context, channelID, userID models.ID) error {
	return s.channels.RequestChannelJoin(ctx, channelID, userID)
}

func (s *MembershipService) ResolveChannelJoin(ctx context.Context, channelID, userID models.ID, approve bool) error {
	return s.channels.ResolveChannelJoin(ctx, channelID, userID, approve)
}

// BanFromChannel blacklists userID on the channel only. Group membership is
// left alone.
func (s *MembershipService) BanFromChannel(ctx context.Context, channelID, userID models.ID) error {
	if err := s.channels.BanFromChannel(ctx, channelID, userID); err != nil {
		return err
	}
	s.relay.Evict(channelID, userID)
	return nil
}

func (s *MembershipService) RemoveFromChannel(ctx context.Context, channelID, userID models.ID) (bool, error) {
	removed, err := s.channels.RemoveChannelMember(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	if removed {
		s.relay.Evict(channelID, userID)
	}
	return removed, nil
}

// CreateGroup makes founderID the sole admin and member of a new group.
func (s *MembershipService) CreateGroup(ctx context.Context, founderID models.ID, name string) (*models.Group, error) {
	founder, err := s.users.GetUser(ctx, founderID)
	if err != nil {
		return nil, err
	}
	if !founder.Valid {
		return nil, models.ErrUnvalidated
	}

	group := &models.Group{Name: strings.TrimSpace(name)}
	c := cascade{name: "create group", log: s.log, steps: []step{
		{"group", func(ctx context.Context) error {
			return s.groups.CreateGroup(ctx, group, founderID)
		}},
		{"user groups", func(ctx context.Context) error {
			return s.users.AddUserGroup(ctx, founderID, group.ID)
		}},
		{"user role", func(ctx context.Context) error {
			if founder.HasRole(models.RoleGroupAdmin) {
				return nil
			}
			err := s.users.AddRole(ctx, founderID, models.RoleGroupAdmin)
			if errors.Is(err, models.ErrAlreadyHasRole) {
				return nil
			}
			return err
		}},
	}}
	if err := c.run(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

// DeleteGroup removes the group with its channels, then drops the group id
// from every former member.
func (s *MembershipService) DeleteGroup(ctx context.Context, groupID models.ID) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	channels, err := s.channels.ListChannelsByGroup(ctx, groupID)
	if err != nil {
		return err
	}

	c := cascade{name: "delete group", log: s.log, steps: []step{
		{"group", func(ctx context.Context) error {
			return s.groups.DeleteGroup(ctx, groupID)
		}},
		{"user groups", func(ctx context.Context) error {
			var errs []error
			for _, member := range group.Members {
				err := s.users.RemoveUserGroup(ctx, member, groupID)
				if err != nil && !errors.Is(err, models.ErrNotFound) {
					errs = append(errs, fmt.Errorf("user %s: %w", member, err))
				}
			}
			return errors.Join(errs...)
		}},
	}}
	if err := c.run(ctx); err != nil {
		return err
	}

	for _, ch := range channels {
		for _, member := range ch.Members {
			s.relay.Evict(ch.ID, member)
		}
	}
	return nil
}

// CreateChannel adds a channel to groupID on behalf of callerID, who must be
// able to administer the group. A caller that is a group member joins the
// channel straight away.
func (s *MembershipService) CreateChannel(ctx context.Context, callerID, groupID models.ID, name string) (*models.Channel, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canAdminister(ctx, callerID, group)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrForbidden
	}

	channel := &models.Channel{
		Name:      strings.TrimSpace(name),
		GroupID:   groupID,
		Members:   models.IDs{},
		CreatedBy: callerID,
	}
	if group.IsMember(callerID) {
		channel.Members.Add(callerID)
	}

	c := cascade{name: "create channel", log: s.log, steps: []step{
		{"channel", func(ctx context.Context) error {
			return s.channels.CreateChannel(ctx, channel)
		}},
		{"group channels", func(ctx context.Context) error {
			return s.groups.AddGroupChannel(ctx, groupID, channel.ID)
		}},
	}}
	if err := c.run(ctx); err != nil {
		return nil, err
	}
	return channel, nil
}

// DeleteChannel unlinks the channel from its group and deletes it together
// with its message log.
func (s *MembershipService) DeleteChannel(ctx context.Context, channelID models.ID) error {
	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}

	c := cascade{name: "delete channel", log: s.log, steps: []step{
		{"group channels", func(ctx context.Context) error {
			err := s.groups.RemoveGroupChannel(ctx, channel.GroupID, channelID)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}},
		{"channel", func(ctx context.Context) error {
			return s.channels.DeleteChannel(ctx, channelID)
		}},
	}}
	if err := c.run(ctx); err != nil {
		return err
	}

	for _, member := range channel.Members {
		s.relay.Evict(channelID, member)
	}
	return nil
}

// PostMessage appends a message from senderID to the channel log and hands
// it to the relay. Only current, non-banned members may post.
func (s *MembershipService) PostMessage(ctx context.Context, channelID, senderID models.ID, content string, kind models.MessageKind) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.ErrEmptyBody
	}
	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsBanned(senderID) {
		return nil, models.ErrBanned
	}
	if !channel.IsMember(senderID) {
		return nil, models.ErrNotMember
	}
	if kind == "" {
		kind = models.KindText
	}

	message := &models.Message{
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		Kind:      kind,
	}
	if err := s.channels.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	s.relay.PublishMessage(message)
	return message, nil
}

// CanAdministerGroup reports whether callerID is a SuperAdmin or one of the
// group's admins.
func (s *MembershipService) CanAdministerGroup(ctx context.Context, callerID, groupID models.ID) (bool, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	return s.canAdminister(ctx, callerID, group)
}

func (s *MembershipService) CanAdministerChannel(ctx context.Context, callerID, channelID models.ID) (bool, error) {
	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	return s.CanAdministerGroup(ctx, callerID, channel.GroupID)
}

func (s *MembershipService) canAdminister(ctx context.Context, callerID models.ID, group *models.Group) (bool, error) {
	if group.IsAdmin(callerID) {
		return true, nil
	}
	caller, err := s.users.GetUser(ctx, callerID)
	if err != nil {
		return false, err
	}
	return caller.HasRole(models.RoleSuperAdmin), nil
}
