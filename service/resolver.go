package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"lms-agent/model"
	"lms-agent/service/actions"
	"lms-agent/utils"
)

var kindNouns = map[model.EntityKind]string{
	model.EntityUser:         "user",
	model.EntityCourse:       "course",
	model.EntityGroup:        "group",
	model.EntityLearningPlan: "learning plan",
	model.EntitySession:      "session",
}

var selfRefs = map[string]bool{"me": true, "myself": true, "my": true, "i": true}

// carryOver phrases refer to the last resolved entity of the kind in this session.
var carryOver = map[model.EntityKind]map[string]bool{
	model.EntityUser: {
		"them": true, "they": true, "him": true, "her": true,
		"same users": true, "the same users": true, "same user": true, "the same user": true,
		"those users": true, "these users": true, "that user": true, "this user": true,
	},
	model.EntityCourse: {
		"it": true, "that course": true, "this course": true,
		"same course": true, "the same course": true,
	},
	model.EntityGroup: {
		"that group": true, "those groups": true, "same group": true,
		"the same group": true, "same groups": true, "the same groups": true,
	},
}

// fillerTokens are ignored by the token overlap score unless nothing else is left.
var fillerTokens = map[string]bool{
	"the": true, "a": true, "an": true, "course": true, "courses": true, "class": true,
	"training": true, "group": true, "groups": true, "plan": true, "session": true,
}

// Resolver turns entity references into directory records.
// Precedence is id, then exact email or name, then fuzzy similarity.
type Resolver struct {
	threshold float64
	tieMargin float64
	logger    *slog.Logger
}

func NewResolver(threshold, tieMargin float64, logger *slog.Logger) *Resolver {
	return &Resolver{threshold: threshold, tieMargin: tieMargin, logger: logger.With("component", "resolver")}
}

// ResolveAll resolves every key named in spec.Resolve. It only issues read-only
// directory searches, so destructive intents can name concrete records in their
// confirmation prompt. Nothing mutating reaches the LMS before a confirmation.
func (r *Resolver) ResolveAll(ctx context.Context, caller *actions.Caller, spec ActionSpec, entities map[string]any, cc *model.ChatContext) (map[string][]model.Entity, error) {
	keys := make([]string, 0, len(spec.Resolve))
	for k := range spec.Resolve {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string][]model.Entity, len(keys))
	for _, key := range keys {
		kind := spec.Resolve[key]
		var ents []model.Entity
		for _, ref := range actions.StringList(entities, key) {
			got, err := r.resolveRef(ctx, caller, kind, ref, cc)
			if err != nil {
				return nil, err
			}
			ents = appendUnique(ents, got...)
		}
		if len(ents) > 0 {
			out[key] = ents
		}
	}
	return out, nil
}

func (r *Resolver) resolveRef(ctx context.Context, caller *actions.Caller, kind model.EntityKind, ref string, cc *model.ChatContext) ([]model.Entity, error) {
	norm := utils.NormalizeString(ref)

	if kind == model.EntityUser && selfRefs[norm] {
		if cc == nil || cc.UserID == "" {
			return nil, model.NewEntityError("resolve", model.ErrEntityNotFound,
				"I don't know which user you are. Please give your user id or email.", nil)
		}
		return []model.Entity{{Kind: model.EntityUser, ID: cc.UserID}}, nil
	}
	if carryOver[kind][norm] {
		var prev []model.Entity
		if cc != nil {
			prev = cc.LastOfKind(kind)
		}
		if len(prev) == 0 {
			return nil, model.NewEntityError("resolve", model.ErrEntityNotFound,
				fmt.Sprintf("I'm not sure which %s %q refers to. Please name it.", kindNouns[kind], ref), nil)
		}
		return prev, nil
	}

	candidates, err := actions.Lookup(ctx, caller, kind, ref)
	if err != nil {
		return nil, err
	}
	e, err := r.Match(kind, ref, candidates)
	if err != nil {
		return nil, err
	}
	return []model.Entity{e}, nil
}

type scored struct {
	entity model.Entity
	score  float64
}

// Match picks the single candidate ref denotes, or returns an entity resolution error.
func (r *Resolver) Match(kind model.EntityKind, ref string, candidates []model.Entity) (model.Entity, error) {
	ref = strings.TrimSpace(ref)
	noun := kindNouns[kind]

	for _, c := range candidates {
		if c.ID == ref {
			return c, nil
		}
	}
	if isNumeric(ref) {
		return model.Entity{}, notFound(noun, ref)
	}

	var exact []model.Entity
	for _, c := range candidates {
		if (c.Email != "" && strings.EqualFold(c.Email, ref)) || (c.Name != "" && strings.EqualFold(c.Name, ref)) {
			exact = append(exact, c)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return model.Entity{}, ambiguous(noun, ref, exact)
	}

	var hits []scored
	for _, c := range candidates {
		if s := similarity(ref, c); s >= r.threshold {
			hits = append(hits, scored{entity: c, score: s})
		}
	}
	if len(hits) == 0 {
		return model.Entity{}, notFound(noun, ref)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entity.ID < hits[j].entity.ID
	})

	best := hits[0]
	var tied []model.Entity
	for _, h := range hits {
		if best.score-h.score < r.tieMargin {
			tied = append(tied, h.entity)
		}
	}
	if len(tied) > 1 {
		r.logger.Debug("ambiguous reference", "kind", kind, "candidates", len(tied))
		return model.Entity{}, ambiguous(noun, ref, tied)
	}
	return best.entity, nil
}

// similarity is the best of edit-distance similarity and token overlap against
// the candidate's name, email and email local part.
func similarity(ref string, c model.Entity) float64 {
	ref = strings.ToLower(strings.TrimSpace(ref))
	fields := []string{strings.ToLower(c.Name), strings.ToLower(c.Email)}
	if at := strings.IndexByte(c.Email, '@'); at > 0 {
		fields = append(fields, strings.ToLower(c.Email[:at]))
	}

	best := 0.0
	for _, f := range fields {
		if f == "" {
			continue
		}
		best = max(best, editSimilarity(ref, f), tokenOverlap(ref, f))
	}
	return best
}

func editSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// tokenOverlap is |ref ∩ cand| / |ref| over normalized word tokens.
func tokenOverlap(ref, cand string) float64 {
	refTokens := significant(strings.Fields(utils.NormalizeString(ref)))
	if len(refTokens) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range strings.Fields(utils.NormalizeString(cand)) {
		have[t] = true
	}
	n := 0
	for _, t := range refTokens {
		if have[t] {
			n++
		}
	}
	return float64(n) / float64(len(refTokens))
}

func significant(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !fillerTokens[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tokens
	}
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func notFound(noun, ref string) error {
	return model.NewEntityError("resolve", model.ErrEntityNotFound,
		fmt.Sprintf("I couldn't find a %s matching %q. Please check the spelling or give an id.", noun, ref), nil)
}

func ambiguous(noun, ref string, candidates []model.Entity) error {
	return model.NewEntityError("resolve", model.ErrEntityAmbiguous,
		fmt.Sprintf("%q matches more than one %s: %s. Which one did you mean?", ref, noun, actions.Names(candidates)),
		candidates)
}

func appendUnique(dst []model.Entity, src ...model.Entity) []model.Entity {
	for _, e := range src {
		dup := false
		for _, d := range dst {
			if d.Kind == e.Kind && d.ID == e.ID {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, e)
		}
	}
	return dst
}
