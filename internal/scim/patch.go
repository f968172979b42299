package scim

import (
	"fmt"
	"regexp"
	"strings"
)

// ApplyUserPatch applies a PatchOp operation list to a user in memory.
// Operations run strictly in order; the caller persists the result only when
// every operation succeeded, so a failing patch leaves the stored resource
// untouched.
func ApplyUserPatch(u *User, ops []PatchOperation) error {
	if len(ops) == 0 {
		return ErrInvalidValue("PatchOp must contain at least one operation.")
	}
	if u.Attributes == nil {
		u.Attributes = map[string]interface{}{}
	}

	for _, op := range ops {
		switch strings.ToLower(op.Op) {
		case "add", "replace":
			if err := applyUserSet(u, op.Path, op.Value); err != nil {
				return err
			}
		case "remove":
			if err := applyUserRemove(u, op.Path); err != nil {
				return err
			}
		default:
			return ErrUnsupportedOperation(fmt.Sprintf("Unsupported patch operation: %s", op.Op))
		}
	}
	return nil
}

func applyUserSet(u *User, path string, value interface{}) error {
	if path == "" {
		// Pathless add/replace: the value object carries attribute/value pairs
		obj, ok := value.(map[string]interface{})
		if !ok {
			return ErrInvalidValue("Value must be an object when no path is specified.")
		}
		for attr, attrValue := range obj {
			if err := applyUserSet(u, attr, attrValue); err != nil {
				return err
			}
		}
		return nil
	}

	if strings.Contains(path, "[") {
		return ErrInvalidPath(fmt.Sprintf("Value filter paths are not supported: %s", path))
	}

	switch strings.ToLower(path) {
	case "active":
		active, err := coerceActive(value)
		if err != nil {
			return err
		}
		u.Active = active
	case "username":
		name, ok := value.(string)
		if !ok || name == "" {
			return ErrInvalidValue("userName must be a non-empty string.")
		}
		u.UserName = name
	case "externalid":
		ext, ok := value.(string)
		if !ok {
			return ErrInvalidValue("externalId must be a string.")
		}
		u.ExternalID = ext
	case "id", "meta":
		return ErrInvalidValue(fmt.Sprintf("Attribute %s is read-only.", path))
	default:
		if value == nil {
			return ErrInvalidPath(fmt.Sprintf("No value supplied for path: %s", path))
		}
		// Bag keys are normalized to lower case, matching the case-insensitive
		// attribute names of the protocol
		u.Attributes[strings.ToLower(path)] = value
	}
	return nil
}

func applyUserRemove(u *User, path string) error {
	if path == "" {
		return ErrInvalidPath("Path is required for remove operations.")
	}
	if strings.Contains(path, "[") {
		return ErrInvalidPath(fmt.Sprintf("Value filter paths are not supported: %s", path))
	}

	switch strings.ToLower(path) {
	case "active":
		// Removing active means deactivation, not reset-to-default
		u.Active = false
	case "username":
		return ErrInvalidValue("userName cannot be removed.")
	case "externalid":
		u.ExternalID = ""
	case "id", "meta":
		return ErrInvalidValue(fmt.Sprintf("Attribute %s is read-only.", path))
	default:
		delete(u.Attributes, strings.ToLower(path))
	}
	return nil
}

// coerceActive normalizes the shapes IdPs send for the active flag: a real
// boolean, the strings "true"/"false" (Entra sends "True"/"False"), or an
// object wrapping the flag as {"active": ...}.
func coerceActive(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	case map[string]interface{}:
		if inner, ok := v["active"]; ok {
			return coerceActive(inner)
		}
	}
	return false, ErrInvalidValue(fmt.Sprintf("Invalid value for active attribute: %v", value))
}

// GroupChange is the accumulated effect of a group PatchOp. The store applies
// it in a single transaction.
type GroupChange struct {
	DisplayName    *string
	Add            []Member
	Remove         []string
	ReplaceMembers *[]Member
}

// memberPathPattern matches the filtered remove path Entra sends,
// e.g. members[value eq "2819c223-7f76-453a-919d-413861904646"]
var memberPathPattern = regexp.MustCompile(`^members\[value\s+[eE][qQ]\s+"([^"]*)"\]$`)

// BuildGroupPatch interprets a PatchOp operation list into a GroupChange
func BuildGroupPatch(ops []PatchOperation) (*GroupChange, error) {
	if len(ops) == 0 {
		return nil, ErrInvalidValue("PatchOp must contain at least one operation.")
	}

	change := &GroupChange{}
	for _, op := range ops {
		opName := strings.ToLower(op.Op)
		switch opName {
		case "add", "replace":
			if err := applyGroupSet(change, opName, op.Path, op.Value); err != nil {
				return nil, err
			}
		case "remove":
			if err := applyGroupRemove(change, op.Path, op.Value); err != nil {
				return nil, err
			}
		default:
			return nil, ErrUnsupportedOperation(fmt.Sprintf("Unsupported patch operation: %s", op.Op))
		}
	}
	return change, nil
}

func applyGroupSet(change *GroupChange, opName, path string, value interface{}) error {
	if path == "" {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return ErrInvalidValue("Value must be an object when no path is specified.")
		}
		for attr, attrValue := range obj {
			if err := applyGroupSet(change, opName, attr, attrValue); err != nil {
				return err
			}
		}
		return nil
	}

	switch strings.ToLower(path) {
	case "displayname":
		name, ok := value.(string)
		if !ok || name == "" {
			return ErrInvalidValue("displayName must be a non-empty string.")
		}
		change.DisplayName = &name
	case "members":
		members, err := parseMembers(value)
		if err != nil {
			return err
		}
		if opName == "replace" {
			change.ReplaceMembers = &members
		} else {
			change.Add = append(change.Add, members...)
		}
	default:
		return ErrInvalidPath(fmt.Sprintf("No such patchable attribute: %s", path))
	}
	return nil
}

func applyGroupRemove(change *GroupChange, path string, value interface{}) error {
	if path == "" {
		return ErrInvalidPath("Path is required for remove operations.")
	}

	// Filtered member path: members[value eq "<id>"]
	if m := memberPathPattern.FindStringSubmatch(path); m != nil {
		change.Remove = append(change.Remove, m[1])
		return nil
	}

	switch strings.ToLower(path) {
	case "members":
		members, err := parseMembers(value)
		if err != nil {
			return err
		}
		for _, member := range members {
			change.Remove = append(change.Remove, member.Value)
		}
	case "displayname":
		return ErrInvalidValue("displayName cannot be removed.")
	default:
		return ErrInvalidPath(fmt.Sprintf("No such patchable attribute: %s", path))
	}
	return nil
}

// parseMembers accepts a single member object or a list of member objects
func parseMembers(value interface{}) ([]Member, error) {
	var entries []interface{}
	switch v := value.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		entries = []interface{}{v}
	default:
		return nil, ErrInvalidValue("members value must be an object or a list of objects.")
	}

	members := make([]Member, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, ErrInvalidValue("members value must be an object or a list of objects.")
		}
		id, ok := obj["value"].(string)
		if !ok || id == "" {
			return nil, ErrInvalidValue("Each member must have a non-empty value.")
		}
		member := Member{Value: id}
		if display, ok := obj["display"].(string); ok {
			member.Display = display
		}
		if memberType, ok := obj["type"].(string); ok {
			member.Type = memberType
		}
		members = append(members, member)
	}
	return members, nil
}
