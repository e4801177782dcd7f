// internal/models/recipient.go
package models

// Recipient is a contact resolved from the external directory. The engine
// does not own recipient data; it is looked up once per outreach attempt.
type Recipient struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Channel     Channel `json:"channel"`
	Address     string  `json:"address"`
}
