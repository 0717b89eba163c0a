package notifications

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Each channel needs one template per message type, named <channel>_<type>.tmpl.
var (
	templateChannels = []string{"discord", "mattermost"}
	messageTypes     = []MessageType{MessageTypeOpened, MessageTypeResolved}
)

var subjectPrefixes = map[MessageType]string{
	MessageTypeOpened:   "Incident",
	MessageTypeResolved: "Resolved",
}

// Renderer turns payloads into channel-specific message bodies.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates and checks that every channel has
// a template for every message type.
func NewRenderer() (*Renderer, error) {
	set, err := template.New("").Funcs(template.FuncMap{
		"title":          titleCase,
		"upper":          strings.ToUpper,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"severityEmoji":  severityEmoji,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(templateChannels)*len(messageTypes))}
	for _, channel := range templateChannels {
		for _, mt := range messageTypes {
			key := templateKey(channel, mt)
			tmpl := set.Lookup(key + ".tmpl")
			if tmpl == nil {
				return nil, fmt.Errorf("missing template %s.tmpl", key)
			}
			r.templates[key] = tmpl
		}
	}

	return r, nil
}

func templateKey(channel string, mt MessageType) string {
	return channel + "_" + string(mt)
}

// Render renders a payload for the given channel.
func (r *Renderer) Render(channel string, payload Payload) (Message, error) {
	key := templateKey(channel, payload.MessageType)
	tmpl, ok := r.templates[key]
	if !ok {
		return Message{}, fmt.Errorf("no template for channel %q and message type %q", channel, payload.MessageType)
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, payload); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", key, err)
	}

	prefix, ok := subjectPrefixes[payload.MessageType]
	if !ok {
		prefix = "Notification"
	}

	return Message{
		Type:    payload.MessageType,
		Subject: "[" + prefix + "] " + payload.Incident.Title,
		Body:    strings.TrimSpace(body.String()),
		URL:     payload.IncidentURL,
	}, nil
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// formatTime also accepts a non-nil *time.Time: templates dereference pointer arguments.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

// formatDuration prints the two most significant units, e.g. "1d 4h" or "2h 15m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var major, minor string
	switch {
	case days > 0:
		major, minor = fmt.Sprintf("%dd", days), unit(hours, "h")
	case hours > 0:
		major, minor = fmt.Sprintf("%dh", hours), unit(minutes, "m")
	default:
		major = fmt.Sprintf("%dm", minutes)
	}

	if minor == "" {
		return major
	}
	return major + " " + minor
}

func unit(n int, suffix string) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return "🔴"
	case "major":
		return "🟠"
	case "minor":
		return "🟡"
	default:
		return "⚪"
	}
}
