package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/fachebot/vesuvius-study/internal/logger"
)

// pageSize Discord API 单次最多返回的消息数
const pageSize = 100

// timestampLayout 与 DiscordChatExporter 一致的时间格式
const timestampLayout = "2006-01-02T15:04:05.000-07:00"

// session discordgo.Session 中用到的方法
type session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Fetcher 通过 Discord Bot API 拉取频道历史，输出为导出文件格式
type Fetcher struct {
	session session
}

// NewFetcher httpClient 为空时使用 discordgo 默认客户端
func NewFetcher(token string, httpClient *http.Client) (*Fetcher, error) {
	if token == "" {
		return nil, errors.New("Discord.Token 未配置")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("创建 Discord 会话失败: %w", err)
	}
	if httpClient != nil {
		s.Client = httpClient
	}
	return &Fetcher{session: s}, nil
}

// FetchChannel 从最新消息往前翻页拉取最多 limit 条 (limit <= 0 表示全部)，结果按时间正序
func (f *Fetcher) FetchChannel(ctx context.Context, channelID string, limit int) (*export.Export, error) {
	ch, err := f.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("获取频道 %s 失败: %w", channelID, err)
	}

	result := &export.Export{
		Channel: export.Channel{ID: ch.ID, Name: ch.Name},
	}
	if ch.GuildID != "" {
		result.Guild.ID = ch.GuildID
		if g, err := f.session.Guild(ch.GuildID, discordgo.WithContext(ctx)); err == nil {
			result.Guild.Name = g.Name
		} else {
			logger.Warnf("[Discord] 获取服务器 %s 信息失败: %v", ch.GuildID, err)
		}
	}

	var newestFirst []*discordgo.Message
	beforeID := ""
	for limit <= 0 || len(newestFirst) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := pageSize
		if limit > 0 {
			n = min(n, limit-len(newestFirst))
		}
		page, err := f.session.ChannelMessages(channelID, n, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("拉取频道 %s 消息失败: %w", channelID, err)
		}
		newestFirst = append(newestFirst, page...)
		logger.Debugf("[Discord] 频道 %s 已拉取 %d 条消息", ch.Name, len(newestFirst))

		if len(page) < n {
			break
		}
		beforeID = page[len(page)-1].ID
	}

	result.Messages = make([]export.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := convertMessage(newestFirst[i])
		msg.Index = len(result.Messages)
		msg.ChannelName = ch.Name
		result.Messages = append(result.Messages, msg)
	}

	logger.Infof("[Discord] 频道 %s 共拉取 %d 条消息", ch.Name, len(result.Messages))
	return result, nil
}

func convertMessage(m *discordgo.Message) export.Message {
	msg := export.Message{
		ID:        m.ID,
		Type:      messageType(m.Type),
		Timestamp: m.Timestamp.Format(timestampLayout),
		Content:   m.Content,
	}

	if m.Author != nil {
		msg.Author = export.Author{
			ID:            m.Author.ID,
			Name:          m.Author.Username,
			Discriminator: m.Author.Discriminator,
			Nickname:      m.Author.GlobalName,
			IsBot:         m.Author.Bot,
		}
		// 新用户名体系下 discriminator 为 "0"
		if msg.Author.Discriminator == "0" {
			msg.Author.Discriminator = ""
		}
	}
	if m.Member != nil && m.Member.Nick != "" {
		msg.Author.Nickname = m.Member.Nick
	}

	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, export.Attachment{ID: a.ID, URL: a.URL, FileName: a.Filename})
	}
	for _, r := range m.Reactions {
		var emoji export.Emoji
		if r.Emoji != nil {
			emoji = export.Emoji{ID: r.Emoji.ID, Name: r.Emoji.Name}
		}
		msg.Reactions = append(msg.Reactions, export.Reaction{Emoji: emoji, Count: r.Count})
	}
	for _, s := range m.StickerItems {
		msg.Stickers = append(msg.Stickers, export.Sticker{ID: s.ID, Name: s.Name, Format: stickerFormat(s.FormatType)})
	}
	return msg
}

func messageType(t discordgo.MessageType) string {
	switch t {
	case discordgo.MessageTypeDefault:
		return export.MessageTypeDefault
	case discordgo.MessageTypeReply:
		return "Reply"
	case discordgo.MessageTypeGuildMemberJoin:
		return "GuildMemberJoin"
	case discordgo.MessageTypeChannelPinnedMessage:
		return "ChannelPinnedMessage"
	case discordgo.MessageTypeThreadCreated:
		return "ThreadCreated"
	default:
		return fmt.Sprintf("Type%d", int(t))
	}
}

func stickerFormat(f discordgo.StickerFormat) string {
	switch f {
	case discordgo.StickerFormatTypePNG:
		return "Png"
	case discordgo.StickerFormatTypeAPNG:
		return "Apng"
	case discordgo.StickerFormatTypeLottie:
		return "Lottie"
	case discordgo.StickerFormatTypeGIF:
		return "Gif"
	default:
		return ""
	}
}
