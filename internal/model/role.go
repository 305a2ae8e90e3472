package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RoleKind is the tag of a Role.
type RoleKind int

const (
	RoleUnknown RoleKind = iota
	RoleAdmin
	RoleTrader
	RoleMember
)

// Role is a user's role. Upstream payloads carry it either as a bare
// string ("admin") or as an object ({"name": "admin", ...}); both decode
// into the same tagged value.
type Role struct {
	Kind RoleKind
	Name string
}

// ParseRole maps a role name to its tagged form.
func ParseRole(name string) Role {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "admin":
		return Role{Kind: RoleAdmin, Name: n}
	case "trader":
		return Role{Kind: RoleTrader, Name: n}
	case "member", "user":
		return Role{Kind: RoleMember, Name: n}
	default:
		return Role{Kind: RoleUnknown, Name: n}
	}
}

// UnmarshalJSON accepts "admin" or {"name":"admin"}.
func (r *Role) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Role{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ParseRole(s)
		return nil
	case '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = ParseRole(obj.Name)
		return nil
	default:
		return fmt.Errorf("model: unsupported role shape %s", string(data))
	}
}

// MarshalJSON always emits the canonical string form.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Name)
}
