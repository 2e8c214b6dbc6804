package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrEmailNotFound はIdPのプロフィールにメールアドレスが含まれていないことを表す。
var ErrEmailNotFound = errors.New("email not found in provider profile")

// OAuthProfile はIdPのユーザー情報から取り出したプロフィール。
type OAuthProfile struct {
	Provider      model.Provider
	ProviderID    string
	Email         string
	EmailVerified bool
	Nickname      string
}

// ExtractProfile はIdPのユーザー情報レスポンスからプロフィールを取り出す。
//
//	Google: sub, email, email_verified, name
//	Kakao:  id, kakao_account.email, kakao_account.is_email_verified,
//	        kakao_account.profile.nickname (なければ properties.nickname)
//
// メールアドレスが無い・空の場合はErrEmailNotFoundを返す。
func ExtractProfile(provider model.Provider, raw []byte) (*OAuthProfile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid %s user info payload", provider)
	}

	profile := &OAuthProfile{Provider: provider}
	switch provider {
	case model.ProviderGoogle:
		r := gjson.GetManyBytes(raw, "sub", "email", "email_verified", "name")
		profile.ProviderID = r[0].String()
		profile.Email = r[1].String()
		profile.EmailVerified = r[2].Bool()
		profile.Nickname = r[3].String()
	case model.ProviderKakao:
		r := gjson.GetManyBytes(raw,
			"id",
			"kakao_account.email",
			"kakao_account.is_email_verified",
			"kakao_account.profile.nickname",
			"properties.nickname",
		)
		profile.ProviderID = r[0].String()
		profile.Email = r[1].String()
		profile.EmailVerified = r[2].Bool()
		profile.Nickname = r[3].String()
		if strings.TrimSpace(profile.Nickname) == "" {
			profile.Nickname = r[4].String()
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	profile.Email = strings.TrimSpace(profile.Email)
	profile.Nickname = strings.TrimSpace(profile.Nickname)

	if profile.ProviderID == "" {
		return nil, fmt.Errorf("empty provider user id in %s user info", provider)
	}
	if profile.Email == "" {
		return nil, ErrEmailNotFound
	}
	return profile, nil
}
