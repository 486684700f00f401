package dto

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LogoutInput struct {
	AccessToken string `json:"accessToken"`
}
