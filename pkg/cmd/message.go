package cmd

import "io"

// Message is a transport-neutral reply.
type Message struct {
	Content   string
	Embed     *Embed
	Ephemeral bool
	Files     []File
}

// Text builds a plain content message.
func Text(content string) Message { return Message{Content: content} }

// Embed is a rich card attached to a message.
type Embed struct {
	Title        string
	Description  string
	URL          string
	ImageURL     string
	ThumbnailURL string
	Color        int
	Author       string
	Fields       []EmbedField
	Footer       string
}

// EmbedField is one name/value pair in an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// File is an attachment.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Common embed colors.
const (
	ColorPrimary = 0x004880
	ColorDanger  = 0xdf001e
	ColorWarning = 0xd87e00
)
