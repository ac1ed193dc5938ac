package repository

import "context"

// MembershipRepository resolves a user identity to the set of project
// identifiers they may see. Every pull and push is scoped through it.
type MembershipRepository interface {
	// ProjectIDs returns the projects the user is a member of.
	ProjectIDs(ctx context.Context, userID string) ([]string, error)

	// AllProjectIDs returns every project id; used for super admins.
	AllProjectIDs(ctx context.Context) ([]string, error)
}
