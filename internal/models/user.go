package models

import "time"

type User struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

// SignupForm is what the signup form collects before it is turned into a
// SignupRequest.
type SignupForm struct {
	Email           string `json:"email"`
	Nickname        string `json:"nickname"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	AgreeTerms      bool   `json:"agree_terms"`
}

type LoginResponse struct {
	IsLoginSuccess   bool   `json:"isLoginSuccess"`
	Email            string `json:"email"`
	Nickname         string `json:"nickname"`
	AccessToken      string `json:"accessToken,omitempty"`
	AccessTokenSnake string `json:"access_token,omitempty"`
	Token            string `json:"token,omitempty"`
}

// BearerToken returns whichever token field the backend populated.
func (r LoginResponse) BearerToken() string {
	return firstNonEmpty(r.AccessToken, r.AccessTokenSnake, r.Token)
}

type SignupResponse struct {
	IsSignupSuccess bool   `json:"isSignupSuccess"`
	Email           string `json:"email"`
	Nickname        string `json:"nickname"`
}

// AuthState is the locally persisted login record.
type AuthState struct {
	Email    string    `json:"email"`
	Nickname string    `json:"nickname,omitempty"`
	Token    string    `json:"access_token,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}
