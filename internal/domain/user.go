package domain

import "time"

// DefaultRole se asigna a usuarios nuevos cuando el registro no indica rol.
const DefaultRole = "customer"

// User es el registro de identidad persistido. Los campos sensibles nunca
// se serializan hacia el cliente.
type User struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"-"`
	Role                   string     `json:"role"`
	IsVerified             bool       `json:"is_verified"`
	Otp                    string     `json:"-"`
	OtpExpiresAt           *time.Time `json:"-"`
	PasswordResetTokenHash string     `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
}

// PublicUser es la proyección del usuario que viaja en las respuestas HTTP.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Public devuelve la proyección segura del usuario.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
