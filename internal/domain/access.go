package domain

import "errors"

// Role — роль вызывающего относительно конкретного приложения.
type Role string

const (
	RolePlatformAdmin Role = "platform_admin" // Оператор платформы
	RoleOwner         Role = "owner"          // Владелец приложения
	RoleAppAdmin      Role = "app_admin"      // Участник команды с ролью Admin/Owner
	RoleCreator       Role = "creator"        // Участник-создатель (расширенное чтение)
	RoleTeam          Role = "team"           // Любой активный участник команды
	RoleNone          Role = ""
)

// ErrAppNotFound — приложение не существует или удалено.
// Удаленное приложение всегда отвечает 404 ДО проверки ролей.
var ErrAppNotFound = errors.New("app not found")

// AccessResult — решение авторизации плюс роль для атрибуции в аудите.
type AccessResult struct {
	Role    Role
	Allowed bool
}

// CanConfigure — настройка самой поверхности доступна только операторам платформы.
func (a AccessResult) CanConfigure() bool {
	return a.Allowed && a.Role == RolePlatformAdmin
}

// CanMutate — запись настроек и вызов действий: минимум team (любой активный участник).
func (a AccessResult) CanMutate() bool {
	return a.Allowed
}

// Identity — аутентифицированный вызывающий (из JWT).
type Identity struct {
	UserID        string
	PlatformAdmin bool
}
