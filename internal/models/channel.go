// internal/models/channel.go
package models

import "fmt"

// Channel identifies the transport used to reach a recipient.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// channelLabels is the single exhaustive mapping for channel display names.
var channelLabels = map[Channel]string{
	ChannelSMS:   "SMS",
	ChannelEmail: "Email",
	ChannelChat:  "In-app chat",
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	_, ok := channelLabels[c]
	return ok
}

// Label returns the human-readable name for the channel.
func (c Channel) Label() string {
	if label, ok := channelLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseChannel converts a raw string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel: %q", s)
	}
	return c, nil
}
