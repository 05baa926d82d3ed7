package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thereayou/groupchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateUser assigns a fresh id and stores user. Usernames and emails are
// unique across the store.
func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = models.NewID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if len(user.Roles) == 0 {
		user.Roles = []models.Role{models.RoleChatUser}
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return models.ErrDuplicateIdentity
		}
		return identityErr(tx.Create(user).Error)
	})
}

// identityErr maps a unique index violation, which a concurrent writer can
// still hit after the duplicate check, onto ErrDuplicateIdentity.
func identityErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrDuplicateIdentity
	}
	return err
}

func (d *Database) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	return find[models.User](ctx, d.db, models.ErrUserNotFound, "id = ?", id)
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return find[models.User](ctx, d.db, models.ErrUserNotFound, "username = ?", username)
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return find[models.User](ctx, d.db, models.ErrUserNotFound, "email = ?", email)
}

func (d *Database) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := d.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser replaces every field of the stored record except its id.
func (d *Database) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := mutate(ctx, d.db, user.ID, models.ErrUserNotFound, func(u *models.User) error {
		id, created := u.ID, u.CreatedAt
		*u = *user
		u.ID, u.CreatedAt = id, created
		return nil
	})
	return identityErr(err)
}

// UpdateProfile changes the username and avatar of id under the row lock,
// leaving roles and group membership as they are. Empty arguments keep the
// stored value.
func (d *Database) UpdateProfile(ctx context.Context, id models.ID, username, avatarURL string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if username != "" && username != user.Username {
			var n int64
			err := tx.Model(&models.User{}).Where("username = ? AND id <> ?", username, id).Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				return models.ErrDuplicateIdentity
			}
			user.Username = username
		}
		if avatarURL != "" {
			user.AvatarURL = avatarURL
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, identityErr(err)
	}
	return &user, nil
}

func (d *Database) DeleteUser(ctx context.Context, id models.ID) error {
	res := d.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (d *Database) AddRole(ctx context.Context, id models.ID, role models.Role) error {
	_, err := mutate(ctx, d.db, id, models.ErrUserNotFound, func(u *models.User) error {
		return u.AddRole(role)
	})
	return err
}

// AddUserGroup records groupID in the user's group set. It is a no-op when
// already present.
func (d *Database) AddUserGroup(ctx context.Context, userID, groupID models.ID) error {
	_, err := mutate(ctx, d.db, userID, models.ErrUserNotFound, func(u *models.User) error {
		u.Groups.Add(groupID)
		return nil
	})
	return err
}

func (d *Database) RemoveUserGroup(ctx context.Context, userID, groupID models.ID) error {
	_, err := mutate(ctx, d.db, userID, models.ErrUserNotFound, func(u *models.User) error {
		u.Groups.Remove(groupID)
		return nil
	})
	return err
}

// ValidateUser approves a pending account.
func (d *Database) ValidateUser(ctx context.Context, id models.ID) error {
	_, err := mutate(ctx, d.db, id, models.ErrUserNotFound, func(u *models.User) error {
		u.Valid = true
		return nil
	})
	return err
}

func (d *Database) TouchLastSeen(ctx context.Context, id models.ID) error {
	err := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}
