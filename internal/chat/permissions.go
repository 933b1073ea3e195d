package chat

import (
	"fmt"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// Role is the authority a caller has over one invoice.
type Role int

const (
	RoleNone Role = iota
	RolePayer
	RoleAdmin
)

// EvaluateRole is the single source of truth for chat permissions.
// inv may be nil for commands that don't target an invoice.
func EvaluateRole(c Caller, adminRoleID string, inv *invoice.Invoice) Role {
	// Guild administrators and holders of the configured role always act as admins.
	if c.Administrator {
		return RoleAdmin
	}
	if adminRoleID != "" {
		for _, r := range c.RoleIDs {
			if r == adminRoleID {
				return RoleAdmin
			}
		}
	}
	if inv != nil && inv.PayerID == c.UserID {
		return RolePayer
	}
	return RoleNone
}

// authorize checks the caller's role against what the action needs.
func authorize(action Action, role Role) error {
	var need Role
	switch action {
	case ActionCreate, ActionRecreate, ActionClose:
		need = RoleAdmin
	case ActionStatus, ActionCancel, ActionPay, ActionResend:
		need = RolePayer
	case ActionList:
		need = RoleNone
	default:
		return domainErr.Invalid("unknown action %q", action)
	}
	if role < need {
		return fmt.Errorf("%w: %s", domainErr.ErrUnauthorized, action)
	}
	return nil
}
