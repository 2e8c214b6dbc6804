package model

import "time"

// GrantTypeBearer はトークンレスポンスのgrantType。
const GrantTypeBearer = "Bearer"

// RefreshToken はメンバーごとに1件だけ保持されるリフレッシュトークンを表す。
// 同じMemberIDで保存すると上書きされ、TTL経過後はストアが破棄する。
type RefreshToken struct {
	MemberID int64
	Token    string
	TTL      time.Duration
}

// AuthResult はログイン・再発行・OAuthログインの結果を表す。
type AuthResult struct {
	GrantType    string
	AccessToken  string
	RefreshToken string
	Nickname     string
	Email        string
	Role         Role
}
