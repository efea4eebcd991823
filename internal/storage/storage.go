// Package storage provee el almacenamiento clave-valor durable donde se
// persiste la cola offline.
package storage

import "context"

// KV es el contrato mínimo de almacenamiento durable.
// Get devuelve ok=false cuando la clave no existe.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
