package extract

import (
	"fmt"
	"strings"
	"testing"

	"replydraft/internal/selectors"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// group describes one rendered message group in a synthetic thread.
type group struct {
	own     bool
	sender  string
	bubbles []string
}

func inbound(sender string, bubbles ...string) group { return group{sender: sender, bubbles: bubbles} }
func own(bubbles ...string) group                    { return group{own: true, bubbles: bubbles} }

func threadHTML(header, headline string, groups ...group) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="msg-entity-lockup__entity-title">` + header + `</div>`)
	if headline != "" {
		b.WriteString(`<div class="msg-entity-lockup__entity-info">` + headline + `</div>`)
	}
	b.WriteString(`<ul class="msg-s-message-list-content">`)
	for _, g := range groups {
		b.WriteString(`<li class="msg-s-message-list__event"><div class="msg-s-event-listitem`)
		if g.own {
			b.WriteString(` msg-s-event-listitem--self`)
		}
		b.WriteString(`">`)
		if g.sender != "" {
			b.WriteString(`<span class="msg-s-message-group__name">` + g.sender + `</span>`)
		}
		for _, text := range g.bubbles {
			b.WriteString(`<div class="msg-s-event-listitem__body">` + text + `</div>`)
		}
		b.WriteString(`</div></li>`)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func extract(t *testing.T, html, location string) *Snapshot {
	t.Helper()
	snap, err := New(selectors.Default()).ExtractHTML(html, location)
	require.NoError(t, err)
	return snap
}

func TestExtract_SingleInbound(t *testing.T) {
	html := threadHTML("Dana Reyes", "Partner at Northwind", inbound("Dana Reyes", "Are you free Thursday?"))

	snap := extract(t, html, "https://www.linkedin.com/messaging/thread/abc123/")
	require.NotNil(t, snap)

	want := &Snapshot{
		ConversationID: "abc123",
		SenderName:     "Dana Reyes",
		SenderHeadline: "Partner at Northwind",
		MessageText:    "Are you free Thursday?",
		ContextLines:   []string{},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_NoGroups(t *testing.T) {
	assert.Nil(t, extract(t, threadHTML("Dana", ""), ""))
}

func TestExtract_OnlyOwnMessages(t *testing.T) {
	assert.Nil(t, extract(t, threadHTML("Dana", "", own("Hello?"), own("Anyone there?")), ""))
}

func TestExtract_AnsweredThreadSuppressed(t *testing.T) {
	html := threadHTML("Dana", "", inbound("Dana", "Hi"), own("Hey there"))
	assert.Nil(t, extract(t, html, "/messaging/thread/abc123/"))
}

func TestExtract_EmptyLastBubble(t *testing.T) {
	html := threadHTML("Dana", "", inbound("Dana", "First question", "   \n\t "))
	assert.Nil(t, extract(t, html, ""))
}

func TestExtract_LastBubbleOfBurst(t *testing.T) {
	html := threadHTML("Dana", "", inbound("Dana", "Hey!", "Quick one:", "Can you intro me to Sam?"))

	snap := extract(t, html, "")
	require.NotNil(t, snap)
	assert.Equal(t, "Can you intro me to Sam?", snap.MessageText)
}

func TestExtract_SenderFallsBackToHeader(t *testing.T) {
	html := threadHTML("Header Name", "", inbound("", "ping"))

	snap := extract(t, html, "")
	require.NotNil(t, snap)
	assert.Equal(t, "Header Name", snap.SenderName)
	assert.Empty(t, snap.SenderHeadline)
}

func TestExtract_WhitespaceCollapsed(t *testing.T) {
	html := threadHTML("  Dana \n Reyes ", "", inbound("", "\n   line one\n      line two  "))

	snap := extract(t, html, "")
	require.NotNil(t, snap)
	assert.Equal(t, "Dana Reyes", snap.SenderName)
	assert.Equal(t, "line one line two", snap.MessageText)
}

func TestExtract_ContextWindowBound(t *testing.T) {
	var groups []group
	for i := 1; i <= 8; i++ {
		if i%2 == 0 {
			groups = append(groups, own(fmt.Sprintf("mine %d", i)))
		} else {
			groups = append(groups, inbound("Dana", fmt.Sprintf("theirs %d", i)))
		}
	}
	groups = append(groups, inbound("Dana", "latest"))

	snap := extract(t, threadHTML("Dana", "", groups...), "")
	require.NotNil(t, snap)

	want := []string{
		"Me: mine 4",
		"Dana: theirs 5",
		"Me: mine 6",
		"Dana: theirs 7",
		"Me: mine 8",
	}
	assert.Equal(t, want, snap.ContextLines)
}

func TestExtract_ContextFlattensBubblesAndClampsAtStart(t *testing.T) {
	html := threadHTML("Dana", "",
		inbound("Dana", "hi", "", "are you around"),
		own("yes", "what's up"),
		inbound("Dana", "can we talk pricing?"),
	)

	snap := extract(t, html, "")
	require.NotNil(t, snap)
	assert.Equal(t, []string{
		"Dana: hi",
		"Dana: are you around",
		"Me: yes",
		"Me: what's up",
	}, snap.ContextLines)
}

func TestExtract_ContextKeepsLastLinesAcrossBubbles(t *testing.T) {
	html := threadHTML("Dana", "",
		own("a1", "a2"),
		own("b1", "b2"),
		own("c1", "c2"),
		own("d1", "d2"),
		own("e1", "e2"),
		inbound("Dana", "latest"),
	)

	snap := extract(t, html, "")
	require.NotNil(t, snap)
	assert.Equal(t, []string{
		"Me: c2",
		"Me: d1",
		"Me: d2",
		"Me: e1",
		"Me: e2",
	}, snap.ContextLines)
}

func TestExtract_Idempotent(t *testing.T) {
	html := threadHTML("Dana", "VC", inbound("Dana", "one"), own("two"), inbound("Dana", "three"))

	first := extract(t, html, "")
	second := extract(t, html, "")
	require.NotNil(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated extraction differs:\n%s", diff)
	}
}

func TestConversationID_HashFallback(t *testing.T) {
	html := threadHTML("Dana", "", inbound("Dana", "Are you free Thursday?"))

	snap := extract(t, html, "https://www.linkedin.com/feed/")
	require.NotNil(t, snap)
	assert.Equal(t, HashID("Dana", "Are you free Thursday?"), snap.ConversationID)
	assert.Regexp(t, `^[0-9a-z]+$`, snap.ConversationID)
}

func TestHashID(t *testing.T) {
	base := HashID("Dana", "Are you free Thursday?")
	assert.Equal(t, base, HashID("Dana", "Are you free Thursday?"), "must be stable")
	assert.NotEqual(t, base, HashID("Sam", "Are you free Thursday?"))
	assert.NotEqual(t, base, HashID("Dana", "Are you free Friday?"))

	prefix := strings.Repeat("x", 50)
	assert.Equal(t, HashID("Dana", prefix+" tail one"), HashID("Dana", prefix+" tail two"),
		"only the first 50 characters feed the id")

	multi := strings.Repeat("é", 50)
	assert.Equal(t, HashID("Dana", multi+"a"), HashID("Dana", multi+"b"), "truncation counts runes")
}

func TestThreadIDFromLocation(t *testing.T) {
	reg := selectors.Default()
	tests := []struct {
		location string
		want     string
	}{
		{"https://www.linkedin.com/messaging/thread/abc123/", "abc123"},
		{"https://www.linkedin.com/messaging/thread/2-ZmE=/?filter=unread", "2-ZmE="},
		{"/messaging/thread/abc123", "abc123"},
		{"https://www.linkedin.com/messaging/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ThreadIDFromLocation(reg, tt.location), tt.location)
	}
}

func TestExtract_CustomRegistry(t *testing.T) {
	reg, err := selectors.New(map[string]string{
		"message_group": "article.turn",
		"own_marker":    "[data-author=me]",
		"bubble":        "p",
		"group_sender":  "h4",
	}, "")
	require.NoError(t, err)

	html := `<section>
		<article class="turn"><h4>Lee</h4><p>first</p></article>
		<article class="turn" data-author="me"><p>reply</p></article>
		<article class="turn"><h4>Lee</h4><p>follow-up</p></article>
	</section>`

	snap, err := New(reg).ExtractHTML(html, "")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Lee", snap.SenderName)
	assert.Equal(t, "follow-up", snap.MessageText)
	assert.Equal(t, []string{"Lee: first", "Me: reply"}, snap.ContextLines)
}
