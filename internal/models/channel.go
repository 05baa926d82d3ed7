package models

import (
	"time"
)

type Channel struct {
	ID           ID     `gorm:"type:varchar(24);primaryKey"`
	Name         string `gorm:"not null"`
	GroupID      ID     `gorm:"type:varchar(24);index;not null"`
	Members      IDs    `gorm:"type:text;serializer:json"`
	JoinRequests IDs    `gorm:"type:text;serializer:json"`
	Blacklist    IDs    `gorm:"type:text;serializer:json"`
	CreatedBy    ID     `gorm:"type:varchar(24)"`
	CreatedAt    time.Time
}

func (c *Channel) IsMember(userID ID) bool {
	return c.Members.Contains(userID)
}

func (c *Channel) IsBanned(userID ID) bool {
	return c.Blacklist.Contains(userID)
}

// RequestJoin records a pending request. Group membership of userID is
// checked by the caller, which has access to the owning group.
func (c *Channel) RequestJoin(userID ID) error {
	if c.Blacklist.Contains(userID) {
		return ErrBanned
	}
	if c.Members.Contains(userID) {
		return ErrAlreadyMember
	}
	if !c.JoinRequests.Add(userID) {
		return ErrAlreadyRequested
	}
	return nil
}

// ResolveJoin approves or rejects a pending request.
func (c *Channel) ResolveJoin(userID ID, approve bool) error {
	if !c.JoinRequests.Remove(userID) {
		return ErrNoSuchRequest
	}
	if approve {
		c.Members.Add(userID)
	}
	return nil
}

// AddMember enrolls userID directly, bypassing the request flow.
func (c *Channel) AddMember(userID ID) error {
	if c.Blacklist.Contains(userID) {
		return ErrBanned
	}
	if !c.Members.Add(userID) {
		return ErrAlreadyMember
	}
	c.JoinRequests.Remove(userID)
	return nil
}

// Ban moves userID onto the blacklist. Pending requests are dropped too.
func (c *Channel) Ban(userID ID) error {
	if c.Blacklist.Contains(userID) {
		return ErrAlreadyBanned
	}
	c.Members.Remove(userID)
	c.JoinRequests.Remove(userID)
	c.Blacklist.Add(userID)
	return nil
}

// RemoveMember reports whether userID was present instead of failing.
func (c *Channel) RemoveMember(userID ID) bool {
	return c.Members.Remove(userID)
}

// Withdraw drops userID from members and pending requests, leaving the
// blacklist alone. It reports whether userID was a member.
func (c *Channel) Withdraw(userID ID) (wasMember bool, changed bool) {
	m := c.Members.Remove(userID)
	r := c.JoinRequests.Remove(userID)
	return m, m || r
}

// Purge removes userID from members, blacklist and requests.
func (c *Channel) Purge(userID ID) bool {
	m := c.Members.Remove(userID)
	b := c.Blacklist.Remove(userID)
	r := c.JoinRequests.Remove(userID)
	return m || b || r
}
