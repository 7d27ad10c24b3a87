package oauth2

// UserInfoResponse is the OpenID Connect userinfo response. The tenant and role claims are
// always present, the profile and phone claims only when those scopes were granted.
type UserInfoResponse struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	Picture       string   `json:"picture,omitempty"`
	UpdatedAt     int64    `json:"updated_at,omitempty"`
	PhoneNumber   string   `json:"phone_number,omitempty"`
	TenantID      string   `json:"tenant_id"`
	TenantName    string   `json:"tenant_name"`
	Role          string   `json:"role,omitempty"`
	Permissions   []string `json:"permissions"`
}
