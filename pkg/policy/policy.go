// Package policy resolves requester identities to capabilities through a
// declarative role table. The moderation gate and the orchestrator consult
// it with a single capability check instead of comparing user id strings
// inline.
package policy

// Capability names a single permission a role can grant.
type Capability string

const (
	// CapModerationBypass exempts a requester from the moderation gate.
	CapModerationBypass Capability = "moderation.bypass"

	// CapAgentTools allows a requester's turns to invoke registered tools.
	CapAgentTools Capability = "agent.tools"
)

// Role is a named set of capabilities.
type Role struct {
	Name         string
	Capabilities []Capability
}

// Table maps requester ids to roles, resolved once at startup.
type Table struct {
	roles    map[string]Role
	byUser   map[string]string
	everyone []Capability
}

// NewTable builds a Table from role definitions and user assignments.
// Capabilities in everyone apply to all requesters, known or not.
func NewTable(roles []Role, assignments map[string]string, everyone []Capability) *Table {
	t := &Table{
		roles:    make(map[string]Role, len(roles)),
		byUser:   make(map[string]string, len(assignments)),
		everyone: everyone,
	}
	for _, r := range roles {
		t.roles[r.Name] = r
	}
	for user, role := range assignments {
		t.byUser[user] = role
	}
	return t
}

// NewAdminTable is a convenience constructor for the common deployment
// shape: a single admin role holding every elevated capability, everyone
// else allowed to use tools.
func NewAdminTable(adminIDs []string) *Table {
	assignments := make(map[string]string, len(adminIDs))
	for _, id := range adminIDs {
		assignments[id] = "admin"
	}
	return NewTable(
		[]Role{{Name: "admin", Capabilities: []Capability{CapModerationBypass, CapAgentTools}}},
		assignments,
		[]Capability{CapAgentTools},
	)
}

// Allows reports whether the requester holds the capability, either through
// an assigned role or through the everyone grant.
func (t *Table) Allows(requesterID string, cap Capability) bool {
	for _, c := range t.everyone {
		if c == cap {
			return true
		}
	}

	roleName, ok := t.byUser[requesterID]
	if !ok {
		return false
	}
	role, ok := t.roles[roleName]
	if !ok {
		return false
	}
	for _, c := range role.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
