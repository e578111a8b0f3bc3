package domain

import "time"

// User 表示一個可登入的使用者身份
// online/last_seen 只由 presence lifecycle 寫入
type User struct {
	ID        string     `bson:"_id" json:"id"`
	FirstName string     `bson:"first_name" json:"firstName"`
	LastName  string     `bson:"last_name" json:"lastName"`
	Username  string     `bson:"username" json:"username"`
	Email     string     `bson:"email" json:"email"`
	Password  string     `bson:"password" json:"-"`
	Online    bool       `bson:"online" json:"online"`
	LastSeen  *time.Time `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

// PublicProfile 對外公開的使用者欄位
type PublicProfile struct {
	ID        string     `bson:"_id" json:"id"`
	FirstName string     `bson:"first_name" json:"firstName"`
	LastName  string     `bson:"last_name" json:"lastName"`
	Username  string     `bson:"username" json:"username"`
	Email     string     `bson:"email" json:"email"`
	Online    bool       `bson:"online" json:"online"`
	LastSeen  *time.Time `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
}

// Public strip private fields
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Online:    u.Online,
		LastSeen:  u.LastSeen,
	}
}

// ProfileUpdate user:updateProfile 可更新的欄位, nil 表示不更動
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// Empty check all fields nil
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Email == nil && p.FirstName == nil && p.LastName == nil
}

// UserQuery join conditions are used to query users
type UserQuery struct {
	ID    *string `bson:"_id"`
	Email *string `bson:"email"`
}
