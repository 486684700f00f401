package dto

import (
	"regexp"
	"strings"

	autherror "github.com/ansm0403/Shopping-mall/internal/errors"
)

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	NickName    string `json:"nickName"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^01[0-9]{8,9}$`)
)

// Validate enforces the hand-validated registration contract: well-formed
// email, a password of at least 8 characters mixing upper/lower/digit/special,
// a nickname, a bare mobile number (no dashes) and an address.
func (in *RegisterInput) Validate() error {
	in.Email = strings.TrimSpace(in.Email)
	in.NickName = strings.TrimSpace(in.NickName)
	in.Address = strings.TrimSpace(in.Address)

	if !emailPattern.MatchString(in.Email) {
		return autherror.ErrValidation.WithMessage("a valid email address is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if in.NickName == "" {
		return autherror.ErrValidation.WithMessage("nickname is required")
	}
	if !phonePattern.MatchString(in.PhoneNumber) {
		return autherror.ErrValidation.WithMessage("phone number must look like 01012345678, without dashes")
	}
	if in.Address == "" {
		return autherror.ErrValidation.WithMessage("address is required")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return autherror.ErrValidation.WithMessage("password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune("@$!%*?&#^()-_=+[]{};:,.", r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return autherror.ErrValidation.WithMessage("password must contain upper and lower case letters, a digit and a special character")
	}
	return nil
}
