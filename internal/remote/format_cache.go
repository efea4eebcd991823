package remote

import (
	"sync"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/models"
)

// formatCache recuerda, por host, qué forma del número de orden aceptó por última vez.
// Vive solo en memoria: si se pierde, el fallback la vuelve a descubrir.
type formatCache struct {
	mu    sync.RWMutex
	prefs map[string]models.Form
}

func newFormatCache() *formatCache {
	return &formatCache{prefs: make(map[string]models.Form)}
}

// preferred devuelve la forma a intentar primero; hash si no hay registro.
func (c *formatCache) preferred(host string) models.Form {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if f, ok := c.prefs[host]; ok {
		return f
	}
	return models.FormHash
}

func (c *formatCache) remember(host string, f models.Form) {
	c.mu.Lock()
	c.prefs[host] = f
	c.mu.Unlock()
}
