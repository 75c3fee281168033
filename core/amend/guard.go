package amend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

// guardModel is an RBAC-with-domains model: a policy role may be granted for
// every event ("*") or for a single event id.
const guardModel = `
[request_definition]
r = sub, dom, act

[policy_definition]
p = sub, dom, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.dom == "*" || p.dom == r.dom) && r.act == p.act
`

const actAmend = "amend"

type Eligibility struct {
	CanAmend bool   `json:"can_amend"`
	Reason   string `json:"reason,omitempty"`
}

// RolesLister resolves the roles a user holds within one event.
type RolesLister interface {
	ListEventRoles(ctx context.Context, userID, eventID int64) ([]string, error)
}

// Guard decides whether a caller may amend a given record. Locked records
// deny everyone; otherwise the original author (by id or by callsign) and
// holders of an elevated role within the record's event are eligible.
type Guard struct {
	enforcer *casbin.Enforcer
	roles    RolesLister
}

func NewGuard(roles RolesLister, elevatedRoles []string) (*Guard, error) {
	m, err := casbinmodel.NewModelFromString(guardModel)
	if err != nil {
		return nil, fmt.Errorf("guard model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("guard enforcer: %w", err)
	}
	for _, role := range elevatedRoles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, err := e.AddPolicy(role, "*", actAmend); err != nil {
			return nil, fmt.Errorf("guard policy %q: %w", role, err)
		}
	}
	return &Guard{enforcer: e, roles: roles}, nil
}

// GrantEventRole allows a role for a single event only, on top of the
// configured event-wide elevated roles.
func (g *Guard) GrantEventRole(role string, eventID int64) error {
	_, err := g.enforcer.AddPolicy(strings.ToLower(strings.TrimSpace(role)), strconv.FormatInt(eventID, 10), actAmend)
	return err
}

func (g *Guard) Evaluate(ctx context.Context, rec *store.LogRecord, caller *store.User) (Eligibility, error) {
	if caller == nil {
		return Eligibility{Reason: "amendments.notEligible"}, nil
	}
	if rec.Locked {
		return Eligibility{Reason: "amendments.recordLocked"}, nil
	}
	if rec.LoggedBy == caller.ID {
		return Eligibility{CanAmend: true}, nil
	}
	if callsignMatch(rec.LoggedCallsign, caller.Callsign) {
		return Eligibility{CanAmend: true}, nil
	}
	roles, err := g.roles.ListEventRoles(ctx, caller.ID, rec.EventID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("list event roles: %w", err)
	}
	dom := strconv.FormatInt(rec.EventID, 10)
	for _, role := range roles {
		ok, err := g.enforcer.Enforce(role, dom, actAmend)
		if err != nil {
			return Eligibility{}, fmt.Errorf("enforce %q: %w", role, err)
		}
		if ok {
			return Eligibility{CanAmend: true}, nil
		}
	}
	return Eligibility{Reason: "amendments.notEligible"}, nil
}

func callsignMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && a == b
}
