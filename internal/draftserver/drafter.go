// Package draftserver is the drafting service: it classifies an inbound
// message and, when a reply is warranted, drafts one with an LLM backend.
package draftserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"replydraft/internal/config"
	"replydraft/internal/drafts"
	"replydraft/internal/logging"
)

const (
	classifyMaxTokens = 300
	draftMaxTokens    = 500

	// UnclassifiedSummary is reported when the classifier's verdict is unreadable.
	UnclassifiedSummary = "Could not classify message"

	maxExamples     = 3
	maxExampleRunes = 500
	maxFeedback     = 20
)

// Completer is a single-turn LLM call.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Verdict is the classifier's decision.
type Verdict struct {
	NeedsResponse bool   `json:"needs_response"`
	Urgency       string `json:"urgency"`
	Summary       string `json:"summary"`
}

// Drafter turns a draft request into a response.
type Drafter struct {
	llm     Completer
	persona string
	voice   config.VoiceConfig
}

// DrafterOption configures a Drafter.
type DrafterOption func(*Drafter)

// WithVoice shapes drafts with a writing style, sample replies and feedback
// on earlier drafts.
func WithVoice(v config.VoiceConfig) DrafterOption {
	return func(d *Drafter) { d.voice = v }
}

// NewDrafter returns a Drafter speaking for persona.
func NewDrafter(llm Completer, persona string, opts ...DrafterOption) *Drafter {
	if persona == "" {
		persona = "the account owner"
	}
	d := &Drafter{llm: llm, persona: persona}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Draft classifies req and drafts a reply when one is needed.
func (d *Drafter) Draft(ctx context.Context, req drafts.Request) (*drafts.Response, error) {
	verdict, err := d.classify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if !verdict.NeedsResponse {
		return &drafts.Response{NeedsResponse: false, Urgency: verdict.Urgency, Summary: verdict.Summary}, nil
	}

	text, err := d.llm.Complete(ctx, d.draftSystemPrompt(), formatMessage(req, &verdict), draftMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}
	return &drafts.Response{
		NeedsResponse: true,
		DraftText:     stripQuotes(strings.TrimSpace(text)),
		Urgency:       verdict.Urgency,
		Summary:       verdict.Summary,
	}, nil
}

func (d *Drafter) classify(ctx context.Context, req drafts.Request) (Verdict, error) {
	raw, err := d.llm.Complete(ctx, d.classifySystemPrompt(), formatMessage(req, nil), classifyMaxTokens)
	if err != nil {
		return Verdict{}, err
	}
	v, ok := parseVerdict(raw)
	if !ok {
		logging.Get(logging.CategoryServer).Warn("unparsable verdict for %s: %q", req.ConversationID, raw)
		return Verdict{NeedsResponse: false, Urgency: "low", Summary: UnclassifiedSummary}, nil
	}
	return v, nil
}

func (d *Drafter) classifySystemPrompt() string {
	return fmt.Sprintf(`You triage LinkedIn direct messages for %s.

Decide whether the latest message needs a personal reply. Recruiter spam, automated
notifications, generic sales pitches and messages that only say thanks do not.

Respond with JSON only, no prose:
{"needs_response": true|false, "urgency": "high"|"medium"|"low", "summary": "<one sentence>"}`, d.persona)
}

func (d *Drafter) draftSystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You draft LinkedIn replies on behalf of %s.\n\n", d.persona)
	b.WriteString(d.voiceSection())
	if s := d.feedbackSection(); s != "" {
		b.WriteString("\n" + s)
	}
	if s := d.examplesSection(); s != "" {
		b.WriteString("\n" + s)
	}
	b.WriteString(`
Rules:
- Never invent facts, meetings or commitments.
- Never promise availability; say you will check your calendar instead.
- If you are unsure about context, flag it in brackets: [CHECK: is this the Q4 intro?]
- Keep it short and conversational, 1-4 sentences, ready to send. No placeholder text.
- Always end with a clear next step or ask.
- Do not wrap the reply in quotes.

Return ONLY the reply text. No preamble, no explanation.`)
	return b.String()
}

func (d *Drafter) voiceSection() string {
	v := d.voice
	if v.IsZero() {
		return `Writing style:
- Direct and specific. Lead with the answer or the action item.
- Human tone, neither corporate nor overly casual.
- No buzzwords ("synergy", "leverage", "circle back").
`
	}
	var b strings.Builder
	b.WriteString("Writing style:\n")
	if v.Summary != "" {
		fmt.Fprintf(&b, "- Overall voice: %s\n", v.Summary)
	}
	if len(v.Greetings) > 0 {
		fmt.Fprintf(&b, "- Greetings: %s\n", strings.Join(v.Greetings, ", "))
	}
	if len(v.Closings) > 0 {
		fmt.Fprintf(&b, "- Closings: %s\n", strings.Join(v.Closings, ", "))
	}
	if len(v.Tone) > 0 {
		fmt.Fprintf(&b, "- Tone: %s\n", strings.Join(v.Tone, ", "))
	}
	if v.Formality > 0 {
		fmt.Fprintf(&b, "- Formality: %d/5\n", v.Formality)
	}
	if v.Length != "" {
		fmt.Fprintf(&b, "- Typical length: %s\n", v.Length)
	}
	if len(v.Avoid) > 0 {
		fmt.Fprintf(&b, "- NEVER use: %s\n", strings.Join(v.Avoid, ", "))
	}
	return b.String()
}

// feedbackSection lists the most recent notes on earlier drafts.
func (d *Drafter) feedbackSection() string {
	notes := d.voice.Feedback
	if len(notes) == 0 {
		return ""
	}
	if len(notes) > maxFeedback {
		notes = notes[len(notes)-maxFeedback:]
	}
	var b strings.Builder
	b.WriteString("Recent feedback on drafts (adjust your writing accordingly):\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return b.String()
}

func (d *Drafter) examplesSection() string {
	examples := d.voice.Examples
	if len(examples) == 0 {
		return ""
	}
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Replies %s has written:\n", d.persona)
	for _, ex := range examples {
		if r := []rune(ex); len(r) > maxExampleRunes {
			ex = string(r[:maxExampleRunes])
		}
		fmt.Fprintf(&b, "---\n%s\n", strings.TrimSpace(ex))
	}
	return b.String()
}

func formatMessage(req drafts.Request, v *Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", req.SenderName)
	if req.SenderHeadline != "" {
		fmt.Fprintf(&b, "Headline: %s\n", req.SenderHeadline)
	}
	if len(req.ConversationContext) > 0 {
		b.WriteString("\nEarlier in the conversation:\n")
		for _, line := range req.ConversationContext {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\nLatest message:\n%s\n", req.MessageText)
	if v != nil {
		fmt.Fprintf(&b, "\nUrgency: %s\nSummary: %s\n", v.Urgency, v.Summary)
	}
	return b.String()
}

// parseVerdict reads the first JSON object in raw, tolerating code fences.
func parseVerdict(raw string) (Verdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{}, false
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return Verdict{}, false
	}
	if v.Urgency == "" {
		v.Urgency = "low"
	}
	return v, true
}

func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
