package postgres

import "context"

// MembershipRepo implements MembershipRepository using PostgreSQL.
type MembershipRepo struct{ db *DB }

// NewMembershipRepo constructs a membership repository.
func NewMembershipRepo(db *DB) *MembershipRepo { return &MembershipRepo{db: db} }

// ProjectIDs returns the projects the user is a member of.
func (r *MembershipRepo) ProjectIDs(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT project_id FROM project_members WHERE user_id=$1 ORDER BY project_id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllProjectIDs returns every project id. Super admins pull with this
// scope instead of their memberships.
func (r *MembershipRepo) AllProjectIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM projects ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
