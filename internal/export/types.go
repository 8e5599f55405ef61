package export

import "time"

// Export DiscordChatExporter 导出文件中本工具关心的部分
type Export struct {
	Guild    Guild     `json:"guild"`
	Channel  Channel   `json:"channel"`
	Messages []Message `json:"messages"`
}

type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Channel struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Name     string `json:"name"`
}

// Author 消息发送者
type Author struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Discriminator string `json:"discriminator"`
	Nickname      string `json:"nickname"`
	IsBot         bool   `json:"isBot,omitempty"`
}

type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
}

type Emoji struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type Reaction struct {
	Emoji Emoji `json:"emoji"`
	Count int   `json:"count"`
}

type Sticker struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Format string `json:"format"`
}

// Message 单条消息，Index 为加载后的位置序号
type Message struct {
	Index       int          `json:"-"`
	ChannelName string       `json:"-"`
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp"`
	Content     string       `json:"content"`
	Author      Author       `json:"author"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Stickers    []Sticker    `json:"stickers,omitempty"`
}

// MessageTypeDefault 普通聊天消息类型
const MessageTypeDefault = "Default"

// DisplayName 显示名称：昵称 > name#discriminator > name > Unknown
func (a Author) DisplayName() string {
	if a.Nickname != "" {
		return a.Nickname
	}
	if a.Name == "" {
		return "Unknown"
	}
	if a.Discriminator == "" {
		return a.Name
	}
	return a.Name + "#" + a.Discriminator
}

// Time 解析消息时间戳
func (m Message) Time() (time.Time, error) {
	return ParseTimestamp(m.Timestamp)
}
