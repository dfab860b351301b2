package shared

// Permission catalog. The authorization engine treats these as opaque,
// case-sensitive keys; this list is the single place new capabilities are
// declared.
const (
	PermArticlesViewAll = "articles.view_all"
	PermArticlesCreate  = "articles.create"
	PermArticlesEdit    = "articles.edit"
	PermArticlesEditAll = "articles.edit_all"
	PermArticlesReview  = "articles.review"
	PermArticlesApprove = "articles.approve"
	PermArticlesManage  = "articles.manage"

	PermUsersManage = "users.manage"
	PermRolesManage = "roles.manage"
)

// PermissionOption pairs a permission key with a human label for the role
// editor.
type PermissionOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// PermissionCatalog enumerates every assignable permission.
func PermissionCatalog() []PermissionOption {
	return []PermissionOption{
		{Key: PermArticlesViewAll, Label: "View all articles"},
		{Key: PermArticlesCreate, Label: "Create articles"},
		{Key: PermArticlesEdit, Label: "Edit own articles"},
		{Key: PermArticlesEditAll, Label: "Edit any article"},
		{Key: PermArticlesReview, Label: "Submit to review"},
		{Key: PermArticlesApprove, Label: "Approve articles"},
		{Key: PermArticlesManage, Label: "Manage all article actions"},
		{Key: PermUsersManage, Label: "Manage users"},
		{Key: PermRolesManage, Label: "Manage roles"},
	}
}

// KnownPermission reports whether key is part of the catalog.
func KnownPermission(key string) bool {
	for _, opt := range PermissionCatalog() {
		if opt.Key == key {
			return true
		}
	}
	return false
}
