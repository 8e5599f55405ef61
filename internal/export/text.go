package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RenderText 把导出内容渲染为纯文本，每条消息之间空一行
func RenderText(w io.Writer, e *Export) error {
	bw := bufio.NewWriter(w)
	for _, m := range e.Messages {
		timestamp := m.Timestamp
		if timestamp == "" {
			timestamp = "No Timestamp"
		}
		author := m.Author.Nickname
		if author == "" {
			name := m.Author.Name
			if name == "" {
				name = "Unknown Author"
			}
			disc := m.Author.Discriminator
			if disc == "" {
				disc = "0000"
			}
			author = name + "#" + disc
		}
		content := m.Content
		if content == "" {
			content = "[No Content]"
		}

		fmt.Fprintf(bw, "[%s] %s\n", timestamp, author)
		fmt.Fprintf(bw, "Content: %s\n", content)

		for _, s := range m.Stickers {
			fmt.Fprintf(bw, "Sticker: %s (Format: %s)\n", orDefault(s.Name, "Unknown Sticker"), orDefault(s.Format, "Unknown Format"))
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(bw, "Attachment: %s\n", orDefault(a.URL, "[No URL]"))
		}
		if len(m.Reactions) > 0 {
			parts := make([]string, len(m.Reactions))
			for i, r := range m.Reactions {
				parts[i] = fmt.Sprintf("%s (%d)", r.Emoji.Name, r.Count)
			}
			fmt.Fprintf(bw, "Reactions: %s\n", strings.Join(parts, ", "))
		}

		bw.WriteString("\n")
	}
	return bw.Flush()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
