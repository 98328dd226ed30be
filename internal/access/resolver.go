package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/tenant-admin-gateway/internal/domain"

	"go.uber.org/zap"
)

// App — минимальная проекция из реестра приложений (внешний collaborator).
type App struct {
	ID          string
	OwnerUserID string
	Deleted     bool
}

// Membership — участие вызывающего в команде приложения.
type Membership struct {
	Role   string // Owner | Admin | Creator | Member
	Active bool
}

// AppDirectory — lookup владения приложением. (nil, nil) — приложения нет.
type AppDirectory interface {
	GetApp(ctx context.Context, appID string) (*App, error)
}

// MembershipDirectory — lookup членства в команде. (nil, nil) — не участник.
type MembershipDirectory interface {
	GetMembership(ctx context.Context, appID, userID string) (*Membership, error)
}

// Resolver — единая точка принятия решения "кто есть вызывающий для этого
// приложения". Раньше такие проверки были размазаны по обработчикам;
// теперь роль вычисляется в одном месте и тестируется без HTTP-слоя.
type Resolver struct {
	apps    AppDirectory
	members MembershipDirectory
	logger  *zap.Logger
}

func NewResolver(apps AppDirectory, members MembershipDirectory, logger *zap.Logger) *Resolver {
	return &Resolver{
		apps:    apps,
		members: members,
		logger:  logger.Named("access"),
	}
}

// Resolve вычисляет роль по строгому приоритету (первое совпадение решает):
// platform_admin -> owner -> app_admin -> creator -> team -> отказ.
// Удаленное приложение — всегда ErrAppNotFound ДО любых проверок ролей.
func (r *Resolver) Resolve(ctx context.Context, appID string, caller domain.Identity) (domain.AccessResult, error) {
	app, err := r.apps.GetApp(ctx, appID)
	if err != nil {
		return domain.AccessResult{}, fmt.Errorf("access: app lookup failed: %w", err)
	}
	if app == nil || app.Deleted {
		return domain.AccessResult{}, domain.ErrAppNotFound
	}

	if caller.PlatformAdmin {
		return domain.AccessResult{Role: domain.RolePlatformAdmin, Allowed: true}, nil
	}

	if app.OwnerUserID != "" && app.OwnerUserID == caller.UserID {
		return domain.AccessResult{Role: domain.RoleOwner, Allowed: true}, nil
	}

	m, err := r.members.GetMembership(ctx, appID, caller.UserID)
	if err != nil {
		return domain.AccessResult{}, fmt.Errorf("access: membership lookup failed: %w", err)
	}
	if m == nil || !m.Active {
		return domain.AccessResult{Role: domain.RoleNone, Allowed: false}, nil
	}

	switch strings.ToLower(m.Role) {
	case "admin", "owner":
		return domain.AccessResult{Role: domain.RoleAppAdmin, Allowed: true}, nil
	case "creator":
		return domain.AccessResult{Role: domain.RoleCreator, Allowed: true}, nil
	default:
		// Любой прочий активный участник — team
		return domain.AccessResult{Role: domain.RoleTeam, Allowed: true}, nil
	}
}
