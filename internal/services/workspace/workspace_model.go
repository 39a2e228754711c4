package workspace

import "time"

// Workspace owns one directory subtree. RootPath is always absolute and
// symlink-canonicalized, so containment checks compare like with like.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	RootPath  string    `json:"root_path"`
	CreatedAt time.Time `json:"created_at"`
}

// UserContext travels with every filesystem execution request. A request
// carrying a WorkspaceID must resolve to exactly one owning workspace or it
// is rejected.
type UserContext struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}
