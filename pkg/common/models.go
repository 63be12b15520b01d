package common

// Users

type AuthUser struct {
	Id    string `json:"id"`
	Email string `json:"email"`
}

type CurrentUser struct {
	Id          string  `json:"id"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Group       string  `json:"group"`
	Balance     float64 `json:"balance"`
	OrgId       string  `json:"orgId"`
	CreatedAt   string  `json:"createdAt"`
	LastLoginAt *string `json:"lastLoginAt"`
}

func (user *CurrentUser) IsAdmin() bool {
	return user.Role == "admin" || user.Role == "owner"
}

// Auth methods

type OAuthMethod struct {
	Id        string `json:"id"`
	Provider  string `json:"provider"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type AuthMethods struct {
	PasswordSet bool          `json:"passwordSet"`
	OAuth       []OAuthMethod `json:"oauth"`
}
