package model

import (
	"github.com/Laisky/errors/v2"

	"github.com/lumichat/credit/common/helper"
	"github.com/lumichat/credit/common/random"
)

const (
	RoleCommonUser = 1
	RoleAdminUser  = 10
)

// User is the minimal account surface this service needs: identity for the
// ledger, an access token for auth, and a display name for reporting. Full
// user management lives in the main platform.
type User struct {
	Id          string `json:"id" gorm:"type:char(32);primaryKey"`
	Username    string `json:"username" gorm:"uniqueIndex;type:varchar(64)"`
	DisplayName string `json:"display_name" gorm:"type:varchar(64);default:''"`
	Role        int    `json:"role" gorm:"default:1"`
	AccessToken string `json:"-" gorm:"type:char(32);uniqueIndex"`
	CreatedAt   int64  `json:"created_at" gorm:"bigint"`
}

// Name returns the human-facing name used in reporting keys.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func GetUserByAccessToken(token string) (*User, error) {
	if token == "" {
		return nil, errors.New("access token is empty")
	}
	var user User
	if err := DB.First(&user, "access_token = ?", token).Error; err != nil {
		return nil, errors.Wrap(err, "get user by access token")
	}
	return &user, nil
}

// SearchUsers matches username or display name by prefix for the admin ledger
// query box.
func SearchUsers(keyword string) ([]*User, error) {
	var users []*User
	db := DB.Model(&User{})
	if keyword != "" {
		db = db.Where("username LIKE ? or display_name LIKE ?", keyword+"%", keyword+"%")
	}
	if err := db.Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	return users, nil
}

func GetUsersByIds(ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*User
	if err := DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "get users by ids")
	}
	return users, nil
}

// GetUserNameMap returns id -> display name for every known user. Reporting
// joins ledger rows against this map in memory.
func GetUserNameMap() (map[string]string, error) {
	var users []*User
	if err := DB.Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	m := make(map[string]string, len(users))
	for _, u := range users {
		m[u.Id] = u.Name()
	}
	return m, nil
}

// CreateRootUserIfNeed seeds an admin account on first boot so the admin
// endpoints are reachable.
func CreateRootUserIfNeed(accessToken string) error {
	var user User
	if err := DB.First(&user).Error; err == nil {
		return nil
	}
	if accessToken == "" {
		accessToken = random.GetUUID()
	}
	root := User{
		Id:          random.GetUUID(),
		Username:    "root",
		DisplayName: "Root User",
		Role:        RoleAdminUser,
		AccessToken: accessToken,
		CreatedAt:   helper.GetTimestamp(),
	}
	if err := DB.Create(&root).Error; err != nil {
		return errors.Wrap(err, "create root user")
	}
	return nil
}
