package service

import (
	"lms-agent/model"
)

// PermissionGate answers role → intent membership against a table fixed at construction.
type PermissionGate struct {
	allowed map[model.Role]map[model.Intent]struct{}
	ordered map[model.Role][]model.Intent
}

func NewPermissionGate(table map[model.Role][]model.Intent) *PermissionGate {
	g := &PermissionGate{
		allowed: make(map[model.Role]map[model.Intent]struct{}, len(table)),
		ordered: make(map[model.Role][]model.Intent, len(table)),
	}
	for role, intents := range table {
		set := make(map[model.Intent]struct{}, len(intents))
		var list []model.Intent
		for _, in := range intents {
			if _, dup := set[in]; dup {
				continue
			}
			set[in] = struct{}{}
			list = append(list, in)
		}
		g.allowed[role] = set
		g.ordered[role] = list
	}
	return g
}

// alwaysAllowed intents carry no side effects.
func alwaysAllowed(in model.Intent) bool {
	return in == model.IntentHelp || in == model.IntentError
}

func (g *PermissionGate) Authorize(role model.Role, intent model.Intent) bool {
	if alwaysAllowed(intent) {
		return true
	}
	_, ok := g.allowed[role][intent]
	return ok
}

// Allowed returns the role's intents in catalog order, including help.
func (g *PermissionGate) Allowed(role model.Role) []model.Intent {
	out := make([]model.Intent, 0, len(g.ordered[role])+1)
	for _, in := range model.Intents {
		if in == model.IntentError {
			continue
		}
		if g.Authorize(role, in) {
			out = append(out, in)
		}
	}
	return out
}
