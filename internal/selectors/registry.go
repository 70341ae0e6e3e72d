// Package selectors maps semantic page roles to the CSS rules that currently
// match them on the host messaging page. The registry is pure data: swapping
// rules after a host redesign never touches the pipeline.
package selectors

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/andybalholm/cascadia"
)

// Role names a structural element of the conversation view.
type Role string

const (
	RoleConversationList Role = "conversation_list"
	RoleThread           Role = "thread"
	RoleMessageGroup     Role = "message_group"
	RoleOwnMarker        Role = "own_marker" // matches a self-authored group (or something inside one)
	RoleGroupSender      Role = "group_sender"
	RoleBubble           Role = "bubble"
	RoleHeaderName       Role = "header_name"
	RoleHeaderHeadline   Role = "header_headline"
	RoleComposer         Role = "composer"
)

// Roles lists every role the pipeline queries.
var Roles = []Role{
	RoleConversationList,
	RoleThread,
	RoleMessageGroup,
	RoleOwnMarker,
	RoleGroupSender,
	RoleBubble,
	RoleHeaderName,
	RoleHeaderHeadline,
	RoleComposer,
}

// DefaultThreadPath extracts the thread id from /messaging/thread/<id>/.
const DefaultThreadPath = `^/messaging/thread/([^/]+)`

var defaultRules = map[Role]string{
	RoleConversationList: ".msg-conversations-container__conversations-list",
	RoleThread:           ".msg-s-message-list-content",
	RoleMessageGroup:     ".msg-s-message-list__event",
	RoleOwnMarker:        ".msg-s-event-listitem--self",
	RoleGroupSender:      ".msg-s-message-group__name",
	RoleBubble:           ".msg-s-event-listitem__body",
	RoleHeaderName:       ".msg-entity-lockup__entity-title",
	RoleHeaderHeadline:   ".msg-entity-lockup__entity-info",
	RoleComposer:         ".msg-form__contenteditable",
}

// Registry holds the current rule per role plus the thread path pattern.
type Registry struct {
	rules      map[Role]string
	threadPath *regexp.Regexp
}

// Default returns the built-in rules for the host messaging page.
func Default() *Registry {
	rules := make(map[Role]string, len(defaultRules))
	for role, rule := range defaultRules {
		rules[role] = rule
	}
	return &Registry{
		rules:      rules,
		threadPath: regexp.MustCompile(DefaultThreadPath),
	}
}

// New builds a registry from the defaults with the given overrides applied.
// Override keys are role names; every rule must compile as a CSS selector.
// An empty threadPath keeps the default pattern.
func New(overrides map[string]string, threadPath string) (*Registry, error) {
	reg := Default()

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		role := Role(key)
		if _, known := defaultRules[role]; !known {
			return nil, fmt.Errorf("unknown selector role %q", key)
		}
		if err := Validate(overrides[key]); err != nil {
			return nil, fmt.Errorf("selector for %s: %w", key, err)
		}
		reg.rules[role] = overrides[key]
	}

	if threadPath != "" {
		re, err := regexp.Compile(threadPath)
		if err != nil {
			return nil, fmt.Errorf("thread path pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("thread path pattern %q needs a capture group for the id", threadPath)
		}
		reg.threadPath = re
	}
	return reg, nil
}

// Validate reports whether rule is a usable CSS selector group.
func Validate(rule string) error {
	if rule == "" {
		return fmt.Errorf("empty selector")
	}
	if _, err := cascadia.ParseGroup(rule); err != nil {
		return fmt.Errorf("invalid selector %q: %w", rule, err)
	}
	return nil
}

// Rule returns the CSS rule for role, or "" for an unknown role.
func (r *Registry) Rule(role Role) string {
	return r.rules[role]
}

// ThreadPath returns the pattern whose first group is the thread id.
func (r *Registry) ThreadPath() *regexp.Regexp {
	return r.threadPath
}

// Rules returns a copy of the role -> rule mapping.
func (r *Registry) Rules() map[Role]string {
	out := make(map[Role]string, len(r.rules))
	for role, rule := range r.rules {
		out[role] = rule
	}
	return out
}
