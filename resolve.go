package bsda

import (
	"fmt"
	"regexp"
	"strings"
)

var digitPattern = regexp.MustCompile(`^\d+$`)

// Filter is the user's selection for one kind of entity. Both lists empty
// selects everything.
type Filter struct {
	Names []string
	Ids   []string
}

func (f Filter) IsEmpty() bool {
	return len(f.Names) == 0 && len(f.Ids) == 0
}

// Resolve selects the candidates named by the filter. Name matches come
// first, in filter order, followed by id matches. Duplicates are kept.
//
// Ids that are not purely numeric and filters matching nothing are reported
// through diag and skipped; resolution itself never fails.
//
// When several candidates share a name (or id) the last one in candidate
// order is the one selected, and a warning names the ambiguity.
func Resolve[E Entity](f Filter, candidates []E, kind string, userContext string, diag Diagnostics) []E {
	if f.IsEmpty() {
		all := make([]E, len(candidates))
		copy(all, candidates)
		return all
	}

	var resolved []E
	if len(f.Names) > 0 {
		resolved = append(resolved,
			selectByKey(f.Names, candidates, Entity.EntityName, kind, "name", userContext, diag)...)
	}
	if len(f.Ids) > 0 {
		var validIds []string
		for _, id := range f.Ids {
			if !digitPattern.MatchString(id) {
				diag.Error(fmt.Sprintf(
					"Invalid format for user-specified %s id \"%s\": %s ids are strictly numeric. "+
						"Did you mean to pass this as a %s name?", kind, id, kind, kind))
				continue
			}
			validIds = append(validIds, id)
		}
		resolved = append(resolved,
			selectByKey(validIds, candidates, Entity.EntityId, kind, "id", userContext, diag)...)
	}
	return resolved
}

func selectByKey[E Entity](
	values []string,
	candidates []E,
	key func(Entity) string,
	kind string,
	keyName string,
	userContext string,
	diag Diagnostics) []E {

	lookup := make(map[string]E, len(candidates))
	counts := make(map[string]int, len(candidates))
	for _, c := range candidates {
		k := key(c)
		lookup[k] = c
		counts[k]++
	}

	var selected []E
	for _, v := range values {
		obj, ok := lookup[v]
		if !ok {
			diag.Warn(strings.TrimSpace(fmt.Sprintf("user-specified %s %s \"%s\" not found in %ss %s",
				kind, keyName, v, kind, userContext)))
			continue
		}
		if counts[v] > 1 {
			diag.Warn(fmt.Sprintf("%d %ss share the %s \"%s\"; using %v",
				counts[v], kind, keyName, v, obj))
		}
		selected = append(selected, obj)
	}
	return selected
}

// UserContext is the "for user ..." phrase attached to resolver warnings.
func UserContext(u *User) string {
	if u == nil || u.Name == "" {
		return ""
	}
	return fmt.Sprintf("for user \"%s\"", u.Name)
}
