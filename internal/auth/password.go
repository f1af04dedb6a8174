package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy はクライアント側で検証するパスワード要件。
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy は8文字以上・大文字・数字・記号を必須とする既定ポリシー。
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Validate はパスワードと確認入力を検証し、違反メッセージを返す。違反がなければ空。
func (p PasswordPolicy) Validate(password string) []string {
	var msgs []string
	if len([]rune(password)) < p.MinLength {
		msgs = append(msgs, fmt.Sprintf("The password must be at least %d characters.", p.MinLength))
	}

	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if p.RequireUpper && !upper {
		msgs = append(msgs, "The password must contain at least one uppercase letter.")
	}
	if p.RequireDigit && !digit {
		msgs = append(msgs, "The password must contain at least one number.")
	}
	if p.RequireSpecial && !special {
		msgs = append(msgs, "The password must contain at least one special character.")
	}
	return msgs
}

// validateRegistration は登録フォームを検証し、フィールド別のエラーを返す。
func validateRegistration(policy PasswordPolicy, name, email, password, confirmation string) map[string][]string {
	fields := map[string][]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = []string{"The name field is required."}
	}
	if !strings.Contains(email, "@") {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	mergePasswordErrors(fields, policy, password, confirmation)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// validateReset はパスワード再設定フォームを検証する。
func validateReset(policy PasswordPolicy, token, email, password, confirmation string) map[string][]string {
	fields := map[string][]string{}
	if strings.TrimSpace(token) == "" {
		fields["token"] = []string{"The reset token is missing."}
	}
	if !strings.Contains(email, "@") {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	mergePasswordErrors(fields, policy, password, confirmation)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func mergePasswordErrors(fields map[string][]string, policy PasswordPolicy, password, confirmation string) {
	if msgs := policy.Validate(password); len(msgs) > 0 {
		fields["password"] = msgs
	}
	if password != confirmation {
		fields["password_confirmation"] = []string{"The password confirmation does not match."}
	}
}
