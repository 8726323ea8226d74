package model

import "time"

// User is an annotator or administrator account
type User struct {
	ID           uint      `gorm:"column:id;primaryKey" json:"id"`
	Username     string    `gorm:"column:username;size:150;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"column:email;size:254" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	IsSuperuser  bool      `gorm:"column:is_superuser" json:"is_superuser"`
	DateJoined   time.Time `gorm:"column:date_joined;autoCreateTime" json:"date_joined"`
}

func (User) TableName() string {
	return "users"
}
