package models

import (
	"time"
)

type Group struct {
	ID           ID     `gorm:"type:varchar(24);primaryKey"`
	Name         string `gorm:"not null"`
	Admins       IDs    `gorm:"type:text;serializer:json"`
	Members      IDs    `gorm:"type:text;serializer:json"`
	Channels     IDs    `gorm:"type:text;serializer:json"`
	JoinRequests IDs    `gorm:"type:text;serializer:json"`
	CreatedBy    ID     `gorm:"type:varchar(24)"`
	CreatedAt    time.Time
}

func (g *Group) IsMember(userID ID) bool {
	return g.Members.Contains(userID)
}

func (g *Group) IsAdmin(userID ID) bool {
	return g.Admins.Contains(userID)
}

func (g *Group) RequestJoin(userID ID) error {
	if g.Members.Contains(userID) {
		return ErrAlreadyMember
	}
	if !g.JoinRequests.Add(userID) {
		return ErrAlreadyRequested
	}
	return nil
}

// ApproveJoin moves userID from the pending requests into members. A user
// that is already a member through a concurrent path is not inserted twice.
func (g *Group) ApproveJoin(userID ID) error {
	if !g.JoinRequests.Remove(userID) {
		return ErrNoSuchRequest
	}
	g.Members.Add(userID)
	return nil
}

func (g *Group) RejectJoin(userID ID) error {
	if !g.JoinRequests.Remove(userID) {
		return ErrNoSuchRequest
	}
	return nil
}

// AddAdmin grants admin rights. A non-member is enrolled as a member at the
// same time so that admins stay a subset of members.
func (g *Group) AddAdmin(userID ID) error {
	if g.Admins.Contains(userID) {
		return ErrAlreadyAdmin
	}
	g.JoinRequests.Remove(userID)
	g.Members.Add(userID)
	g.Admins.Add(userID)
	return nil
}

func (g *Group) RemoveAdmin(userID ID) {
	g.Admins.Remove(userID)
}

// RemoveMember drops userID from members and admins. It fails when the user
// was not a member.
func (g *Group) RemoveMember(userID ID) error {
	if !g.Members.Remove(userID) {
		return ErrNotMember
	}
	g.Admins.Remove(userID)
	return nil
}

// Purge removes every trace of userID and reports whether anything changed.
func (g *Group) Purge(userID ID) bool {
	m := g.Members.Remove(userID)
	a := g.Admins.Remove(userID)
	r := g.JoinRequests.Remove(userID)
	return m || a || r
}
