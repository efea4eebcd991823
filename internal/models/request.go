package models

// StatusUpdateRequest es el body que envía la UI para un cambio de estado genérico.
type StatusUpdateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// DispatchRequest es el body que envía la UI al despachar una orden.
type DispatchRequest struct {
	Notes string `json:"notes,omitempty"`
}

// CancelRequest es el body que envía la UI al cancelar una orden.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// ConnectivityRequest notifica el estado de red detectado por el dispositivo.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}
