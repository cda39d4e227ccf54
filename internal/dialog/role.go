package dialog

import (
	"strconv"
	"strings"
)

// Role identifies who sent a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Complement returns the other conversational party. System has none.
func (r Role) Complement() (Role, bool) {
	switch r {
	case RoleUser:
		return RoleAgent, true
	case RoleAgent:
		return RoleUser, true
	}
	return "", false
}

var roleAliases = map[string]Role{
	"1":        RoleUser,
	"user":     RoleUser,
	"customer": RoleUser,
	"client":   RoleUser,
	"visitor":  RoleUser,
	"用户":       RoleUser,
	"客户":       RoleUser,
	"顾客":       RoleUser,

	"2":        RoleAgent,
	"agent":    RoleAgent,
	"service":  RoleAgent,
	"servicer": RoleAgent,
	"staff":    RoleAgent,
	"客服":       RoleAgent,
	"人工":       RoleAgent,

	"3":      RoleSystem,
	"system": RoleSystem,
	"sys":    RoleSystem,
	"bot":    RoleSystem,
	"robot":  RoleSystem,
	"系统":     RoleSystem,
}

// ParseRole maps a raw sender label to a Role. Numeric codes written as
// floats ("2.0") are accepted. ok is false when the label is not a valid
// explicit role.
func ParseRole(raw string) (Role, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if r, ok := roleAliases[s]; ok {
		return r, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		if r, ok := roleAliases[strconv.Itoa(int(f))]; ok {
			return r, true
		}
	}
	return "", false
}
