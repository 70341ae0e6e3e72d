// Package extract derives the actionable conversation state from a snapshot
// of the host page. Extraction is a pure function of (document, location):
// it never caches and never touches the page.
package extract

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"replydraft/internal/logging"
	"replydraft/internal/selectors"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

const (
	// MaxContextGroups bounds how many groups before the inbound one are read.
	MaxContextGroups = 5
	// MaxContextLines bounds the flattened context sent with a request.
	MaxContextLines = 5
	// hashTextRunes is how much of the message text feeds the fallback id.
	hashTextRunes = 50
	// SelfLabel prefixes lines from self-authored groups.
	SelfLabel = "Me"
)

// Snapshot is the DOM-independent view of the current actionable state.
type Snapshot struct {
	ConversationID string   `json:"conversation_id"`
	SenderName     string   `json:"sender_name"`
	SenderHeadline string   `json:"sender_headline,omitempty"` // empty when the header has none
	MessageText    string   `json:"message_text"`
	ContextLines   []string `json:"context_lines"`
}

// Extractor reads the page through the selector registry.
type Extractor struct {
	reg *selectors.Registry
}

// New returns an Extractor bound to reg.
func New(reg *selectors.Registry) *Extractor {
	return &Extractor{reg: reg}
}

// ExtractHTML parses html and runs Extract. Parse failures are returned;
// "nothing to answer" is (nil, nil).
func (e *Extractor) ExtractHTML(html, location string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page snapshot: %w", err)
	}
	return e.Extract(doc, location), nil
}

// Extract returns the snapshot for the most recent unanswered inbound
// message, or nil when the thread has no such message.
func (e *Extractor) Extract(doc *goquery.Document, location string) *Snapshot {
	groups := doc.Find(e.reg.Rule(selectors.RoleMessageGroup))
	n := groups.Length()
	if n == 0 {
		logging.ExtractDebug("no message groups")
		return nil
	}

	inbound := -1
	for i := n - 1; i >= 0; i-- {
		if !e.isOwn(groups.Eq(i)) {
			inbound = i
			break
		}
	}
	if inbound < 0 {
		logging.ExtractDebug("no inbound group among %d", n)
		return nil
	}
	// Anything after the last inbound group is self-authored: already answered.
	if inbound < n-1 {
		logging.ExtractDebug("thread answered: %d own group(s) after inbound", n-1-inbound)
		return nil
	}

	group := groups.Eq(inbound)
	sender := collapse(group.Find(e.reg.Rule(selectors.RoleGroupSender)).First().Text())
	if sender == "" {
		sender = collapse(doc.Find(e.reg.Rule(selectors.RoleHeaderName)).First().Text())
	}
	headline := collapse(doc.Find(e.reg.Rule(selectors.RoleHeaderHeadline)).First().Text())

	text := collapse(group.Find(e.reg.Rule(selectors.RoleBubble)).Last().Text())
	if text == "" {
		logging.ExtractDebug("last inbound bubble is empty")
		return nil
	}

	return &Snapshot{
		ConversationID: ConversationID(e.reg, location, sender, text),
		SenderName:     sender,
		SenderHeadline: headline,
		MessageText:    text,
		ContextLines:   e.contextLines(groups, inbound, sender),
	}
}

func (e *Extractor) isOwn(group *goquery.Selection) bool {
	marker := e.reg.Rule(selectors.RoleOwnMarker)
	return group.Is(marker) || group.Find(marker).Length() > 0
}

// contextLines flattens up to MaxContextGroups groups before inbound and keeps
// the last MaxContextLines lines, oldest first.
func (e *Extractor) contextLines(groups *goquery.Selection, inbound int, sender string) []string {
	start := inbound - MaxContextGroups
	if start < 0 {
		start = 0
	}
	bubble := e.reg.Rule(selectors.RoleBubble)

	lines := []string{}
	for i := start; i < inbound; i++ {
		g := groups.Eq(i)
		label := sender
		if e.isOwn(g) {
			label = SelfLabel
		}
		g.Find(bubble).Each(func(_ int, b *goquery.Selection) {
			if t := collapse(b.Text()); t != "" {
				lines = append(lines, label+": "+t)
			}
		})
	}
	if len(lines) > MaxContextLines {
		lines = lines[len(lines)-MaxContextLines:]
	}
	return lines
}

// ConversationID prefers the thread id in location's path and falls back to
// a hash of sender plus the start of the message.
func ConversationID(reg *selectors.Registry, location, sender, text string) string {
	if id := ThreadIDFromLocation(reg, location); id != "" {
		return id
	}
	return HashID(sender, text)
}

// ThreadIDFromLocation returns the thread id captured by the registry's path
// pattern, or "".
func ThreadIDFromLocation(reg *selectors.Registry, location string) string {
	if location == "" {
		return ""
	}
	path := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		path = u.Path
	}
	m := reg.ThreadPath().FindStringSubmatch(path)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// HashID is a compact, deterministic, non-cryptographic token for a thread
// state without a URL id.
func HashID(sender, text string) string {
	runes := []rune(text)
	if len(runes) > hashTextRunes {
		runes = runes[:hashTextRunes]
	}
	return strconv.FormatUint(xxhash.Sum64String(sender+string(runes)), 36)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
