package apperr

import (
	"errors"
	"net/http"
)

// Kind clasifica los errores de negocio para logging y pruebas.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindAuth         Kind = "auth"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

// Error transporta un status HTTP explícito y un mensaje listo para el
// envelope de respuesta. Se construye en los servicios y lo traduce un único
// middleware en la frontera HTTP.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New construye un error con kind, status y mensaje explícitos.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// Validation marca entrada faltante o malformada.
func Validation(message string) *Error {
	return New(KindValidation, http.StatusBadRequest, message)
}

// Conflict marca estados duplicados (usuario ya verificado, email en uso).
func Conflict(message string) *Error {
	return New(KindConflict, http.StatusBadRequest, message)
}

// Auth marca credenciales o tokens inválidos/expirados.
func Auth(message string) *Error {
	return New(KindAuth, http.StatusBadRequest, message)
}

// Unauthorized marca requests sin bearer token válido.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, message)
}

// NotFound marca usuario o token desconocido.
func NotFound(message string) *Error {
	return New(KindNotFound, http.StatusNotFound, message)
}

// RateLimited marca solicitudes rechazadas por frecuencia.
func RateLimited(message string) *Error {
	return New(KindRateLimited, http.StatusTooManyRequests, message)
}

// As extrae un *Error de una cadena de errores.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reporta si err es un *Error del kind dado.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
