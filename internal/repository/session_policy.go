package repository

import "context"

// SessionStore son las operaciones de poda que una política puede ejecutar
// sobre los refresh tokens vivos de un usuario.
type SessionStore interface {
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteOldest(ctx context.Context, userID string, keep int) (int64, error)
}

// SessionPolicy decide cuántos refresh tokens sobreviven cuando se emite uno
// nuevo. Trim corre antes del insert, dentro de la misma transacción.
type SessionPolicy interface {
	Trim(ctx context.Context, sessions SessionStore, userID string) error
}

type singleSessionPolicy struct{}

// NewSingleSessionPolicy borra todas las sesiones previas del usuario: un
// login en otro dispositivo invalida las demás sesiones.
func NewSingleSessionPolicy() SessionPolicy {
	return singleSessionPolicy{}
}

func (singleSessionPolicy) Trim(ctx context.Context, sessions SessionStore, userID string) error {
	_, err := sessions.DeleteByUser(ctx, userID)
	return err
}

type maxSessionsPolicy struct {
	max int
}

// NewMaxSessionsPolicy conserva como máximo max sesiones vivas; al emitir la
// nueva se podan las más viejas que excedan max-1.
func NewMaxSessionsPolicy(max int) SessionPolicy {
	if max < 1 {
		max = 1
	}
	return maxSessionsPolicy{max: max}
}

func (p maxSessionsPolicy) Trim(ctx context.Context, sessions SessionStore, userID string) error {
	_, err := sessions.DeleteOldest(ctx, userID, p.max-1)
	return err
}

type unlimitedSessionsPolicy struct{}

// NewUnlimitedSessionsPolicy no poda nada; cada login agrega una sesión.
func NewUnlimitedSessionsPolicy() SessionPolicy {
	return unlimitedSessionsPolicy{}
}

func (unlimitedSessionsPolicy) Trim(context.Context, SessionStore, string) error {
	return nil
}
