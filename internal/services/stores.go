package services

import (
	"context"

	"github.com/thereayou/groupchat/internal/models"
)

// IdentityStore is the subset of the user store the coordinator writes to.
type IdentityStore interface {
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
	AddRole(ctx context.Context, id models.ID, role models.Role) error
	AddUserGroup(ctx context.Context, userID, groupID models.ID) error
	RemoveUserGroup(ctx context.Context, userID, groupID models.ID) error
	ValidateUser(ctx context.Context, id models.ID) error
	DeleteUser(ctx context.Context, id models.ID) error
}

type GroupRegistry interface {
	CreateGroup(ctx context.Context, group *models.Group, founder models.ID) error
	GetGroup(ctx context.Context, id models.ID) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	RequestGroupJoin(ctx context.Context, groupID, userID models.ID) error
	ApproveGroupJoin(ctx context.Context, groupID, userID models.ID) error
	RejectGroupJoin(ctx context.Context, groupID, userID models.ID) error
	AddGroupAdmin(ctx context.Context, groupID, userID models.ID) error
	RemoveGroupAdmin(ctx context.Context, groupID, userID models.ID) error
	RemoveGroupMember(ctx context.Context, groupID, userID models.ID) error
	PurgeUserFromGroup(ctx context.Context, groupID, userID models.ID) error
	AddGroupChannel(ctx context.Context, groupID, channelID models.ID) error
	RemoveGroupChannel(ctx context.Context, groupID, channelID models.ID) error
	DeleteGroup(ctx context.Context, id models.ID) error
}

type ChannelRegistry interface {
	CreateChannel(ctx context.Context, channel *models.Channel) error
	GetChannel(ctx context.Context, id models.ID) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
	ListChannelsByGroup(ctx context.Context, groupID models.ID) ([]models.Channel, error)
	RequestChannelJoin(ctx context.Context, channelID, userID models.ID) error
	ResolveChannelJoin(ctx context.Context, channelID, userID models.ID, approve bool) error
	BanFromChannel(ctx context.Context, channelID, userID models.ID) error
	RemoveChannelMember(ctx context.Context, channelID, userID models.ID) (bool, error)
	WithdrawFromChannel(ctx context.Context, channelID, userID models.ID) (bool, error)
	PurgeUserFromChannel(ctx context.Context, channelID, userID models.ID) error
	DeleteChannel(ctx context.Context, id models.ID) error
	AppendMessage(ctx context.Context, message *models.Message) error
}

// Relay fans appended messages out to live connections and drops users that
// lost access to a channel.
type Relay interface {
	PublishMessage(message *models.Message)
	Evict(channelID, userID models.ID)
}

type UserCache interface {
	Evict(ctx context.Context, id models.ID)
}

type nopRelay struct{}

func (nopRelay) PublishMessage(*models.Message) {}
func (nopRelay) Evict(models.ID, models.ID)     {}

type nopCache struct{}

func (nopCache) Evict(context.Context, models.ID) {}
