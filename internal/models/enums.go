package models

// FolderRole is the well-known role of a folder. Roles are persisted as
// strings, so values read back from disk may predate newly-added roles;
// ParseFolderRole maps those to RoleUnknown instead of failing.
type FolderRole string

const (
	RoleNone    FolderRole = ""
	RoleInbox   FolderRole = "inbox"
	RoleDrafts  FolderRole = "drafts"
	RoleSent    FolderRole = "sent"
	RoleSpam    FolderRole = "spam"
	RoleTrash   FolderRole = "trash"
	RoleArchive FolderRole = "archive"
	RoleUnknown FolderRole = "unknown"
)

// ParseFolderRole maps a persisted role string to a FolderRole.
// Unrecognized non-empty values fall back to RoleUnknown.
func ParseFolderRole(s string) FolderRole {
	switch FolderRole(s) {
	case RoleNone, RoleInbox, RoleDrafts, RoleSent, RoleSpam, RoleTrash, RoleArchive:
		return FolderRole(s)
	default:
		return RoleUnknown
	}
}

// Order returns the display ordering of default-role folders.
func (r FolderRole) Order() int {
	switch r {
	case RoleInbox:
		return 0
	case RoleDrafts:
		return 1
	case RoleSent:
		return 2
	case RoleSpam:
		return 3
	case RoleTrash:
		return 4
	case RoleArchive:
		return 5
	default:
		return 100
	}
}

// Theme is the persisted UI theme preference.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// ParseTheme maps a persisted theme string, falling back to ThemeSystem.
func ParseTheme(s string) Theme {
	switch Theme(s) {
	case ThemeSystem, ThemeLight, ThemeDark:
		return Theme(s)
	default:
		return ThemeSystem
	}
}

// SwipeAction is the persisted swipe gesture preference.
type SwipeAction string

const (
	SwipeNone       SwipeAction = "none"
	SwipeArchive    SwipeAction = "archive"
	SwipeDelete     SwipeAction = "delete"
	SwipeMarkAsRead SwipeAction = "mark_as_read"
	SwipeFavorite   SwipeAction = "favorite"
)

// ParseSwipeAction maps a persisted swipe action string, falling back to
// SwipeNone for values written by newer versions.
func ParseSwipeAction(s string) SwipeAction {
	switch SwipeAction(s) {
	case SwipeNone, SwipeArchive, SwipeDelete, SwipeMarkAsRead, SwipeFavorite:
		return SwipeAction(s)
	default:
		return SwipeNone
	}
}
