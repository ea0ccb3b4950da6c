// Package posts holds the post entity (a forwarded chat message), its validation
// schema, the persistence contract and the short-lived page cache in front of it.
package posts

// Post is keyed by the caller-supplied MessageID. Optional members are pointers or
// nil slices so that absent fields stay absent on the wire and in storage.
type Post struct {
	MessageID       *int64          `json:"message_id,omitempty" mapstructure:"message_id"`
	Date            *int64          `json:"date,omitempty" mapstructure:"date"`
	Chat            *Chat           `json:"chat,omitempty" mapstructure:"chat"`
	Text            *string         `json:"text,omitempty" mapstructure:"text"`
	Caption         *string         `json:"caption,omitempty" mapstructure:"caption"`
	Entities        []MessageEntity `json:"entities,omitempty" mapstructure:"entities"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty" mapstructure:"caption_entities"`
	MediaGroupID    *string         `json:"media_group_id,omitempty" mapstructure:"media_group_id"`
	Photo           []PhotoSize     `json:"photo,omitempty" mapstructure:"photo"`
	Video           *Video          `json:"video,omitempty" mapstructure:"video"`
}

type Chat struct {
	ID        *int64  `json:"id,omitempty" mapstructure:"id"`
	Type      string  `json:"type,omitempty" mapstructure:"type"`
	Title     *string `json:"title,omitempty" mapstructure:"title"`
	Username  *string `json:"username,omitempty" mapstructure:"username"`
	FirstName *string `json:"first_name,omitempty" mapstructure:"first_name"`
	LastName  *string `json:"last_name,omitempty" mapstructure:"last_name"`
}

// MessageEntity annotates a span of Text or Caption (hashtag, bold, link, mention...).
type MessageEntity struct {
	Type          string  `json:"type,omitempty" mapstructure:"type"`
	Offset        *int64  `json:"offset,omitempty" mapstructure:"offset"`
	Length        *int64  `json:"length,omitempty" mapstructure:"length"`
	URL           *string `json:"url,omitempty" mapstructure:"url"`
	CustomEmojiID *string `json:"custom_emoji_id,omitempty" mapstructure:"custom_emoji_id"`
	Lang          *string `json:"lang,omitempty" mapstructure:"lang"`
	User          *User   `json:"user,omitempty" mapstructure:"user"`
}

type User struct {
	ID        *int64  `json:"id,omitempty" mapstructure:"id"`
	IsBot     *bool   `json:"is_bot,omitempty" mapstructure:"is_bot"`
	FirstName *string `json:"first_name,omitempty" mapstructure:"first_name"`
	LastName  *string `json:"last_name,omitempty" mapstructure:"last_name"`
	Username  *string `json:"username,omitempty" mapstructure:"username"`
}

type PhotoSize struct {
	FileID       string `json:"file_id,omitempty" mapstructure:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty" mapstructure:"file_unique_id"`
	Width        *int64 `json:"width,omitempty" mapstructure:"width"`
	Height       *int64 `json:"height,omitempty" mapstructure:"height"`
	FileSize     *int64 `json:"file_size,omitempty" mapstructure:"file_size"`
}

type Video struct {
	FileID       string     `json:"file_id,omitempty" mapstructure:"file_id"`
	FileUniqueID string     `json:"file_unique_id,omitempty" mapstructure:"file_unique_id"`
	Width        *int64     `json:"width,omitempty" mapstructure:"width"`
	Height       *int64     `json:"height,omitempty" mapstructure:"height"`
	Duration     *int64     `json:"duration,omitempty" mapstructure:"duration"`
	Thumb        *PhotoSize `json:"thumb,omitempty" mapstructure:"thumb"`
	MimeType     *string    `json:"mime_type,omitempty" mapstructure:"mime_type"`
	FileSize     *int64     `json:"file_size,omitempty" mapstructure:"file_size"`
}

// ID returns the message id, or 0 when the post has none yet.
func (p Post) ID() int64 {
	if p.MessageID == nil {
		return 0
	}
	return *p.MessageID
}
