package permission

import (
	"strings"

	"github.com/samber/lo"
)

// A permissioned operation, written as "<prefix>|<verb>".
type Action string

type ActionPrefix string

const (
	ActionPrefixSpace  ActionPrefix = "space"
	ActionPrefixBase   ActionPrefix = "base"
	ActionPrefixTable  ActionPrefix = "table"
	ActionPrefixView   ActionPrefix = "view"
	ActionPrefixField  ActionPrefix = "field"
	ActionPrefixRecord ActionPrefix = "record"
)

var ActionPrefixes = []ActionPrefix{
	ActionPrefixSpace,
	ActionPrefixBase,
	ActionPrefixTable,
	ActionPrefixView,
	ActionPrefixField,
	ActionPrefixRecord,
}

// Every known action, grouped by prefix.
var Actions = []Action{
	"space|create",
	"space|delete",
	"space|read",
	"space|update",
	"space|invite_email",
	"space|invite_link",
	"space|grant_role",
	"base|create",
	"base|delete",
	"base|read",
	"base|update",
	"base|invite_email",
	"base|invite_link",
	"table|create",
	"table|read",
	"table|delete",
	"table|update",
	"table|import",
	"view|create",
	"view|delete",
	"view|read",
	"view|update",
	"field|create",
	"field|delete",
	"field|read",
	"field|update",
	"record|create",
	"record|comment",
	"record|delete",
	"record|read",
	"record|update",
}

func (action Action) Prefix() ActionPrefix {
	prefix, _, _ := strings.Cut(string(action), "|")
	return ActionPrefix(prefix)
}

func (action Action) IsValid() bool {
	return lo.Contains(Actions, action)
}

// Translation key for the action's description, e.g. "space|invite_email" gives
// "permission.actionDescription.spaceInviteEmail".
func (action Action) DescriptionKey() string {
	prefix, verb, _ := strings.Cut(string(action), "|")
	return "permission.actionDescription." + prefix + lo.PascalCase(verb)
}

// Translation key for the prefix's display title.
func (prefix ActionPrefix) TitleKey() string {
	return "noun." + string(prefix)
}

type ActionStatic struct {
	Description string `json:"description"`
}

type ActionPrefixStatic struct {
	Title string `json:"title"`
}

// Static display data for all actions and prefixes, with translation keys for the frontend to
// resolve.
type Catalog struct {
	ActionStaticMap       map[Action]ActionStatic             `json:"actionStaticMap"`
	ActionPrefixStaticMap map[ActionPrefix]ActionPrefixStatic `json:"actionPrefixStaticMap"`
}

func NewCatalog() Catalog {
	return Catalog{
		ActionStaticMap: lo.SliceToMap(Actions, func(action Action) (Action, ActionStatic) {
			return action, ActionStatic{Description: action.DescriptionKey()}
		}),
		ActionPrefixStaticMap: lo.SliceToMap(
			ActionPrefixes,
			func(prefix ActionPrefix) (ActionPrefix, ActionPrefixStatic) {
				return prefix, ActionPrefixStatic{Title: prefix.TitleKey()}
			},
		),
	}
}

func ActionsByPrefix() map[ActionPrefix][]Action {
	return lo.GroupBy(Actions, Action.Prefix)
}
