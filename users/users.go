package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Role is a tenant scoped role and the permissions it grants.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// TenantMembership represents a user's membership and role within a specific tenant
type TenantMembership struct {
	TenantID string    `json:"tenant_id"`
	Role     *Role     `json:"role,omitempty"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	PasswordHash  string    `json:"-"` // never serialize
	FullName      string    `json:"full_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Blocked       bool      `json:"blocked,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`

	Tenants []TenantMembership `json:"tenants,omitempty"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper || !hasLower || !hasNumber {
		return fmt.Errorf("password must contain upper and lower case letters and a number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Authenticate checks the password and that the account may sign in.
func (u *User) Authenticate(password string) bool {
	return !u.Blocked && u.PasswordHash != "" && CheckPasswordHash(password, u.PasswordHash)
}

// ActiveMembership returns the user's active membership for tenantID, or nil.
func (u *User) ActiveMembership(tenantID string) *TenantMembership {
	for i := range u.Tenants {
		if u.Tenants[i].TenantID == tenantID && u.Tenants[i].IsActive {
			return &u.Tenants[i]
		}
	}
	return nil
}

// DefaultTenantID is the first active tenant membership, or "" when there is none.
func (u *User) DefaultTenantID() string {
	for _, m := range u.Tenants {
		if m.IsActive {
			return m.TenantID
		}
	}
	return ""
}
