// internal/models/serviceresponse/types.go
package serviceresponse

// SyncResult es lo que recibe la UI por cada operación de la fachada.
// Los fallos esperados se devuelven como valores, nunca como panic.
type SyncResult struct {
	Success    bool           `json:"success"`
	Queued     bool           `json:"queued,omitempty"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	Body       map[string]any `json:"body,omitempty"`
}

// Succeeded construye un resultado exitoso confirmado por el sitio web.
func Succeeded(message string, body map[string]any) SyncResult {
	return SyncResult{Success: true, Message: message, Body: body}
}

// QueuedForLater construye el acuse de una operación guardada offline.
func QueuedForLater() SyncResult {
	return SyncResult{Success: true, Queued: true, Message: "Saved offline, will sync when connection is restored"}
}

// Failed construye un resultado fallido.
func Failed(statusCode int, message string) SyncResult {
	return SyncResult{Success: false, StatusCode: statusCode, Message: message}
}

// FlushResult resume un vaciado de la cola offline.
type FlushResult struct {
	Attempted int      `json:"attempted"`
	Synced    int      `json:"synced"`
	Requeued  int      `json:"requeued"`
	Abandoned int      `json:"abandoned"`
	Remaining int      `json:"remaining"`
	Skipped   bool     `json:"skipped,omitempty"` // offline, o ya había otro flush en curso
	Errors    []string `json:"errors,omitempty"`
}
