package models

import "strings"

// Form identifica una de las dos representaciones textuales de un número de orden.
type Form string

const (
	FormHash   Form = "hash"
	FormDigits Form = "digits"
)

// Alternate devuelve la otra representación.
func (f Form) Alternate() Form {
	if f == FormDigits {
		return FormHash
	}
	return FormDigits
}

// OrderNumber contiene ambas formas canónicas de un identificador de orden.
type OrderNumber struct {
	Digits string
	Hash   string
}

// Canonicalize deriva la forma sin '#' y la forma con '#' de un identificador crudo.
// Nunca falla: una entrada vacía produce "" y "#".
func Canonicalize(raw string) OrderNumber {
	digits := strings.TrimLeft(strings.TrimSpace(raw), "#")
	return OrderNumber{
		Digits: digits,
		Hash:   "#" + digits,
	}
}

// In devuelve el identificador en la forma pedida.
func (n OrderNumber) In(f Form) string {
	if f == FormDigits {
		return n.Digits
	}
	return n.Hash
}
