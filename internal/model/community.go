package model

// ChannelType identifies the external messaging network of a channel.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelWhatsApp ChannelType = "whatsapp"
)

// Community is a consumer group that hires traders and receives their
// signals. The monitor only reads communities.
type Community struct {
	ID           string   `json:"id" db:"id"`
	Name         string   `json:"name" db:"name"`
	Active       bool     `json:"active" db:"active"`
	HiredTraders []string `json:"hired_traders" db:"hired_traders"`
}

// Hires reports whether traderID is in the community's hired list.
func (c Community) Hires(traderID string) bool {
	for _, t := range c.HiredTraders {
		if t == traderID {
			return true
		}
	}
	return false
}

// Credentials holds what a channel adapter needs to deliver a message.
// Only the fields relevant to the channel's type are populated.
type Credentials struct {
	// Telegram
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`

	// Discord
	WebhookURL string `json:"webhook_url,omitempty"`

	// WhatsApp Cloud API
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
}

// Channel is a messaging destination owned by a community.
type Channel struct {
	ID          string      `json:"id" db:"id"`
	CommunityID string      `json:"community_id" db:"community_id"`
	Type        ChannelType `json:"type" db:"type"`
	Credentials Credentials `json:"credentials" db:"credentials"`
	Active      bool        `json:"active" db:"active"`
}
