package actions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lms-agent/model"
)

// Entity keys shared by the classifier contract and the action table.
const (
	KeyUser   = "user"
	KeyUsers  = "users"
	KeyCourse = "course"
	KeyGroups = "groups"
	KeyQuery  = "query"

	KeyStatus   = "status"
	KeyDueDate  = "due_date"
	KeyPriority = "priority"
)

// String reads a scalar entity. Numbers are rendered without a fraction when integral.
func String(entities map[string]any, key string) string {
	switch v := entities[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	case []any:
		if len(v) > 0 {
			return String(map[string]any{key: v[0]}, key)
		}
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

// StringList reads a list entity. A single string is split on commas and semicolons.
func StringList(entities map[string]any, key string) []string {
	var raw []string
	switch v := entities[key].(type) {
	case []any:
		for _, item := range v {
			if s := String(map[string]any{key: item}, key); s != "" {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	case nil:
		return nil
	default:
		s := String(entities, key)
		raw = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

// Present reports whether key holds a non-empty value.
func Present(entities map[string]any, key string) bool {
	return len(StringList(entities, key)) > 0
}

var dueDateLayouts = []string{"2006-01-02", time.RFC3339}

// Options extracts enrollment options. An unreadable due date is an entity error.
func Options(entities map[string]any) (model.EnrollOptions, error) {
	opts := model.EnrollOptions{
		Status:   String(entities, KeyStatus),
		Priority: String(entities, KeyPriority),
	}
	raw := String(entities, KeyDueDate)
	if raw == "" {
		return opts, nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			opts.DueDate = &t
			return opts, nil
		}
	}
	return opts, model.NewEntityError("options", model.ErrInvalidInput,
		fmt.Sprintf("I couldn't read the due date %q. Please use the YYYY-MM-DD format.", raw), nil)
}

// CheckOptions validates options ahead of a confirmation prompt.
func CheckOptions(entities map[string]any) error {
	_, err := Options(entities)
	return err
}

// Names renders entities as "a, b and c".
func Names(ents []model.Entity) string {
	labels := make([]string, len(ents))
	for i, e := range ents {
		labels[i] = e.Display()
	}
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}

// IDs returns the entity ids in order.
func IDs(ents []model.Entity) []string {
	out := make([]string, len(ents))
	for i, e := range ents {
		out[i] = e.ID
	}
	return out
}

func first(resolved map[string][]model.Entity, key string) (model.Entity, bool) {
	ents := resolved[key]
	if len(ents) == 0 {
		return model.Entity{}, false
	}
	return ents[0], true
}
