package domain

import "time"

// RefreshToken es la credencial de sesión persistida. Se borra en logout
// (por valor) o cuando la política de sesiones poda tokens al emitir uno nuevo.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
