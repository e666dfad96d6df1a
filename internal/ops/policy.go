package ops

import (
	"math"
	"strings"

	"github.com/appetiteclub/apt"
)

// Staff roles incidents can be routed to.
const (
	RoleAdmin   = "Admin"
	RoleCashier = "Cashier"
	RoleWaiter  = "Waiter"
)

const (
	defaultLevel2Minutes = 15
	defaultLevel3Minutes = 30
	maxEscalationLevel   = 3
)

// EscalationPolicy decides how long an incident stays at a level and who is
// paged at each one.
type EscalationPolicy struct {
	Level2Minutes float64        `json:"level2_minutes"`
	Level3Minutes float64        `json:"level3_minutes"`
	LevelRoles    map[int]string `json:"level_roles"`
}

// NewEscalationPolicy normalizes raw settings: zero minutes take the
// defaults, level 2 is at least one minute, level 3 comes at least one
// minute after level 2, and unknown roles fall back to the level default.
func NewEscalationPolicy(level2, level3 float64, roles [maxEscalationLevel]string) EscalationPolicy {
	if level2 == 0 {
		level2 = defaultLevel2Minutes
	}
	if level3 == 0 {
		level3 = defaultLevel3Minutes
	}
	level2 = math.Max(1, level2)
	level3 = math.Max(level2+1, level3)

	return EscalationPolicy{
		Level2Minutes: level2,
		Level3Minutes: level3,
		LevelRoles: map[int]string{
			1: normalizeRole(roles[0], RoleCashier),
			2: normalizeRole(roles[1], RoleAdmin),
			3: normalizeRole(roles[2], RoleAdmin),
		},
	}
}

func DefaultEscalationPolicy() EscalationPolicy {
	return NewEscalationPolicy(0, 0, [maxEscalationLevel]string{})
}

// EscalationPolicyFromConfig reads ops.escalation.level{2,3}.minutes and
// ops.escalation.level{1,2,3}.role.
func EscalationPolicyFromConfig(cfg *apt.Config) EscalationPolicy {
	if cfg == nil {
		return DefaultEscalationPolicy()
	}
	var roles [maxEscalationLevel]string
	roles[0], _ = cfg.GetString("ops.escalation.level1.role")
	roles[1], _ = cfg.GetString("ops.escalation.level2.role")
	roles[2], _ = cfg.GetString("ops.escalation.level3.role")

	return NewEscalationPolicy(
		configFloat(cfg, "ops.escalation.level2.minutes", defaultLevel2Minutes),
		configFloat(cfg, "ops.escalation.level3.minutes", defaultLevel3Minutes),
		roles,
	)
}

// RoleFor returns the role paged at a level. Levels are clamped to 1..3.
func (p EscalationPolicy) RoleFor(level int) string {
	if level < 1 {
		level = 1
	}
	if level > maxEscalationLevel {
		level = maxEscalationLevel
	}
	if role, ok := p.LevelRoles[level]; ok && role != "" {
		return role
	}
	return RoleAdmin
}

// LevelFor returns the escalation level an incident open for openMinutes
// deserves. Critical incidents escalate twice as fast.
func (p EscalationPolicy) LevelFor(openMinutes float64, severity Severity) int {
	m := 1.0
	if severity == SeverityCritical {
		m = 0.5
	}
	l2 := math.Max(1, p.Level2Minutes*m)
	l3 := math.Max(l2+1, p.Level3Minutes*m)

	switch {
	case openMinutes >= l3:
		return 3
	case openMinutes >= l2:
		return 2
	default:
		return 1
	}
}

func normalizeRole(raw, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin
	case "cashier":
		return RoleCashier
	case "waiter":
		return RoleWaiter
	default:
		return fallback
	}
}
