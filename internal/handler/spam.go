package handler

import (
	"net/url"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
)

// isProbationViolation reports whether a message from a probationary user
// breaks the no-links-no-forwards rule.
func (h *Handler) isProbationViolation(message telego.Message) bool {
	if message.ForwardOrigin != nil {
		return true
	}
	if message.Story != nil {
		return true
	}
	if message.ExternalReply != nil {
		return true
	}
	return h.hasNonWhitelistedLink(message)
}

func (h *Handler) hasNonWhitelistedLink(message telego.Message) bool {
	for _, raw := range extractLinks(message) {
		if !h.isLinkWhitelisted(raw) {
			return true
		}
	}
	return false
}

// extractLinks collects URLs from the message text and caption entities.
func extractLinks(message telego.Message) []string {
	var links []string
	links = appendEntityLinks(links, message.Text, message.Entities)
	links = appendEntityLinks(links, message.Caption, message.CaptionEntities)
	return links
}

func appendEntityLinks(links []string, text string, entities []telego.MessageEntity) []string {
	if text == "" || len(entities) == 0 {
		return links
	}
	// Entity offsets and lengths count UTF-16 code units.
	units := utf16.Encode([]rune(text))
	for _, e := range entities {
		switch e.Type {
		case telego.EntityTypeURL:
			if e.Offset < 0 || e.Offset+e.Length > len(units) {
				continue
			}
			links = append(links, string(utf16.Decode(units[e.Offset:e.Offset+e.Length])))
		case telego.EntityTypeTextLink:
			if e.URL != "" {
				links = append(links, e.URL)
			}
		}
	}
	return links
}

// isLinkWhitelisted matches the link's hostname against the configured
// whitelist, accepting subdomains of whitelisted domains.
func (h *Handler) isLinkWhitelisted(raw string) bool {
	host := hostnameOf(raw)
	if host == "" {
		return false
	}
	for {
		if _, ok := h.whitelistDomains[host]; ok {
			return true
		}
		idx := strings.Index(host, ".")
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

func hostnameOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
