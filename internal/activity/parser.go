// Package activity renders the raw request log as a human-readable
// provisioning event feed.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/audit"
	"github.com/scimtool/scimtool/internal/scim"
)

// Event is one feed entry derived from a logged request
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Icon      string    `json:"icon"`
	Message   string    `json:"message"`
}

// Parser turns request logs into events. The resource store is used to
// resolve member ids to userNames; unresolvable ids fall back to the raw id.
type Parser struct {
	store  scim.Store
	logger *zap.Logger
}

// NewParser creates a new activity parser
func NewParser(store scim.Store, logger *zap.Logger) *Parser {
	return &Parser{store: store, logger: logger}
}

var (
	usersPathPattern  = regexp.MustCompile(`/Users/([^/?]+)$`)
	groupsPathPattern = regexp.MustCompile(`/Groups/([^/?]+)$`)
)

// Parse renders a batch of request logs as events, newest first. Requests
// that carry no provisioning meaning (discovery, unfiltered reads) are
// skipped.
func (p *Parser) Parse(ctx context.Context, logs []*audit.RequestLog) []Event {
	events := []Event{}
	for _, entry := range logs {
		if event, ok := p.parseOne(ctx, entry); ok {
			events = append(events, event)
		}
	}
	return events
}

func (p *Parser) parseOne(ctx context.Context, entry *audit.RequestLog) (Event, bool) {
	event := Event{ID: entry.ID, Timestamp: entry.CreatedAt}

	// Failed requests surface as errors regardless of the operation
	if entry.Status >= 400 && entry.Status != 404 {
		event.Type = "error"
		event.Icon = "⚠️"
		event.Message = fmt.Sprintf("%s %s failed with status %d", entry.Method, entry.URL, entry.Status)
		return event, true
	}

	switch {
	case entry.Method == "POST" && strings.Contains(entry.URL, "/Users") && entry.Status == 201:
		event.Type = "user.created"
		event.Icon = "👤"
		event.Message = fmt.Sprintf("User %q was created", p.userNameFromBody(entry.ResponseBody))

	case entry.Method == "PATCH" && usersPathPattern.MatchString(entry.URL) && entry.Status == 200:
		name := p.userNameFromBody(entry.ResponseBody)
		switch activeChange(entry.RequestBody) {
		case "deactivated":
			event.Type = "user.deactivated"
			event.Icon = "🚫"
			event.Message = fmt.Sprintf("User %q was deactivated", name)
		case "activated":
			event.Type = "user.activated"
			event.Icon = "✅"
			event.Message = fmt.Sprintf("User %q was activated", name)
		default:
			event.Type = "user.updated"
			event.Icon = "✏️"
			event.Message = fmt.Sprintf("User %q was updated", name)
		}

	case entry.Method == "PUT" && usersPathPattern.MatchString(entry.URL) && entry.Status == 200:
		event.Type = "user.replaced"
		event.Icon = "♻️"
		event.Message = fmt.Sprintf("User %q was replaced", p.userNameFromBody(entry.ResponseBody))

	case entry.Method == "DELETE" && usersPathPattern.MatchString(entry.URL) && entry.Status == 204:
		id := usersPathPattern.FindStringSubmatch(entry.URL)[1]
		event.Type = "user.deleted"
		event.Icon = "🗑️"
		event.Message = fmt.Sprintf("User %s was deleted", id)

	case entry.Method == "POST" && strings.Contains(entry.URL, "/Groups") && entry.Status == 201:
		event.Type = "group.created"
		event.Icon = "👥"
		event.Message = fmt.Sprintf("Group %q was created", p.displayNameFromBody(entry.ResponseBody))

	case entry.Method == "PATCH" && groupsPathPattern.MatchString(entry.URL) && entry.Status == 204:
		groupID := groupsPathPattern.FindStringSubmatch(entry.URL)[1]
		return p.groupPatchEvent(ctx, event, groupID, entry.RequestBody)

	case entry.Method == "PUT" && groupsPathPattern.MatchString(entry.URL) && entry.Status == 200:
		event.Type = "group.replaced"
		event.Icon = "♻️"
		event.Message = fmt.Sprintf("Group %q was replaced", p.displayNameFromBody(entry.ResponseBody))

	case entry.Method == "DELETE" && groupsPathPattern.MatchString(entry.URL) && entry.Status == 204:
		id := groupsPathPattern.FindStringSubmatch(entry.URL)[1]
		event.Type = "group.deleted"
		event.Icon = "🗑️"
		event.Message = fmt.Sprintf("Group %s was deleted", id)

	case entry.Method == "GET" && strings.Contains(entry.URL, "filter="):
		event.Type = "query"
		event.Icon = "🔍"
		event.Message = fmt.Sprintf("Lookup %s", queryTarget(entry.URL))

	default:
		return event, false
	}
	return event, true
}

// groupPatchEvent renders member adds/removes and renames
func (p *Parser) groupPatchEvent(ctx context.Context, event Event, groupID, requestBody string) (Event, bool) {
	var req scim.PatchRequest
	if err := json.Unmarshal([]byte(requestBody), &req); err != nil {
		return event, false
	}
	change, err := scim.BuildGroupPatch(req.Operations)
	if err != nil {
		return event, false
	}

	groupName := groupID
	if g, err := p.store.GetGroup(ctx, groupID); err == nil {
		groupName = g.DisplayName
	}

	switch {
	case len(change.Add) > 0:
		ids := make([]string, 0, len(change.Add))
		for _, m := range change.Add {
			ids = append(ids, m.Value)
		}
		event.Type = "group.members.added"
		event.Icon = "➕"
		event.Message = fmt.Sprintf("Added %s to group %q", p.resolveNames(ctx, ids), groupName)
	case len(change.Remove) > 0:
		event.Type = "group.members.removed"
		event.Icon = "➖"
		event.Message = fmt.Sprintf("Removed %s from group %q", p.resolveNames(ctx, change.Remove), groupName)
	case change.ReplaceMembers != nil:
		event.Type = "group.members.replaced"
		event.Icon = "♻️"
		event.Message = fmt.Sprintf("Replaced the member list of group %q (%d members)", groupName, len(*change.ReplaceMembers))
	case change.DisplayName != nil:
		event.Type = "group.renamed"
		event.Icon = "✏️"
		event.Message = fmt.Sprintf("Group %s was renamed to %q", groupID, *change.DisplayName)
	default:
		event.Type = "group.updated"
		event.Icon = "✏️"
		event.Message = fmt.Sprintf("Group %q was updated", groupName)
	}
	return event, true
}

// resolveNames maps member ids to userNames where possible
func (p *Parser) resolveNames(ctx context.Context, ids []string) string {
	names, err := p.store.UserNames(ctx, ids)
	if err != nil {
		p.logger.Debug("Failed to resolve member names", zap.Error(err))
		names = map[string]string{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok {
			out = append(out, fmt.Sprintf("%q", name))
			continue
		}
		out = append(out, id)
	}
	return strings.Join(out, ", ")
}

func (p *Parser) userNameFromBody(body string) string {
	var resource struct {
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal([]byte(body), &resource); err != nil || resource.UserName == "" {
		return "unknown"
	}
	return resource.UserName
}

func (p *Parser) displayNameFromBody(body string) string {
	var resource struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal([]byte(body), &resource); err != nil || resource.DisplayName == "" {
		return "unknown"
	}
	return resource.DisplayName
}

// activeChange inspects a user patch body and reports whether it flips the
// active flag: "activated", "deactivated", or "" when it touches other
// attributes.
func activeChange(requestBody string) string {
	var req scim.PatchRequest
	if err := json.Unmarshal([]byte(requestBody), &req); err != nil {
		return ""
	}
	for _, op := range req.Operations {
		opName := strings.ToLower(op.Op)
		if opName != "add" && opName != "replace" {
			continue
		}

		var value interface{}
		switch strings.ToLower(op.Path) {
		case "active":
			value = op.Value
		case "":
			obj, ok := op.Value.(map[string]interface{})
			if !ok {
				continue
			}
			if v, exists := obj["active"]; exists {
				value = v
			}
		default:
			continue
		}

		switch v := value.(type) {
		case bool:
			if v {
				return "activated"
			}
			return "deactivated"
		case string:
			if strings.EqualFold(v, "true") {
				return "activated"
			}
			if strings.EqualFold(v, "false") {
				return "deactivated"
			}
		}
	}
	return ""
}

// queryTarget extracts a readable filter description from a list URL
func queryTarget(url string) string {
	idx := strings.Index(url, "filter=")
	if idx < 0 {
		return url
	}
	filter := url[idx+len("filter="):]
	if amp := strings.Index(filter, "&"); amp >= 0 {
		filter = filter[:amp]
	}
	filter = strings.ReplaceAll(filter, "%20", " ")
	filter = strings.ReplaceAll(filter, "+", " ")
	filter = strings.ReplaceAll(filter, "%22", `"`)
	return filter
}
