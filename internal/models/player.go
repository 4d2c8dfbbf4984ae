package models

// Player identifies a contestant. Verified is true only when an identity
// token was successfully checked; otherwise the identity is client-declared.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Verified    bool   `json:"verified"`
}
