package discord

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const maxMessageLen = 2000

// Command is one prefixed chat command split into its name and arguments.
type Command struct {
	Name string
	Args []string
	Rest string
}

// ParseCommand splits "!buy coal factory" into name "buy", args and the raw
// remainder. ok is false when content does not start with the prefix.
func ParseCommand(content, prefix string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	body := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if body == "" {
		return Command{}, false
	}
	name, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)
	return Command{
		Name: strings.ToLower(name),
		Args: strings.Fields(rest),
		Rest: rest,
	}, true
}

// ParseMention extracts a user id from <@123> or <@!123>.
func ParseMention(token string) (string, bool) {
	if !strings.HasPrefix(token, "<@") || !strings.HasSuffix(token, ">") {
		return "", false
	}
	id := strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(token, "<@"), ">"), "!")
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

// Capabilities maps guild role names onto the two capabilities the economy knows about.
func Capabilities(roleNames []string, adminRole, creatorRole string) (isAdmin, canCreate bool) {
	for _, name := range roleNames {
		if name == adminRole {
			isAdmin = true
		}
		if name == creatorRole {
			canCreate = true
		}
	}
	return isAdmin, canCreate
}

// SplitMessage breaks text into chunks Discord will accept, preferring line breaks.
func SplitMessage(text string) []string {
	var out []string
	for len(text) > maxMessageLen {
		cut := strings.LastIndex(text[:maxMessageLen], "\n")
		if cut <= 0 {
			cut = maxMessageLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		out = append(out, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func shortDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
