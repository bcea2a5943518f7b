package store

import (
	"context"
	"fmt"
	"time"
)

// --- comments ---

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, activity_id, author_id, body)
		VALUES ($1, $2, $3, $4)
	`, comment.ID, comment.ActivityID, comment.AuthorID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, activityID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.activity_id, c.author_id, u.display_name, c.body, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.activity_id=$1
		ORDER BY c.created_at ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.ActivityID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, author_id, body, created_at
		FROM comments WHERE id=$1
	`, commentID).Scan(&item.ID, &item.ActivityID, &item.AuthorID, &item.Body, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// --- todos ---

func (s *PostgresStore) InsertTodo(ctx context.Context, todo Todo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (id, travel_id, title, done, assignee_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, todo.ID, todo.TravelID, todo.Title, todo.Done, todo.AssigneeID, todo.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTodo(ctx context.Context, todoID string) (Todo, error) {
	var item Todo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, travel_id, title, done, assignee_id, created_by, created_at, updated_at
		FROM todos WHERE id=$1
	`, todoID).Scan(&item.ID, &item.TravelID, &item.Title, &item.Done, &item.AssigneeID, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Todo{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTodos(ctx context.Context, travelID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_id, title, done, assignee_id, created_by, created_at, updated_at
		FROM todos
		WHERE travel_id=$1
		ORDER BY created_at ASC
	`, travelID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	items := make([]Todo, 0)
	for rows.Next() {
		var item Todo
		if err := rows.Scan(&item.ID, &item.TravelID, &item.Title, &item.Done, &item.AssigneeID, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTodo(ctx context.Context, todoID, title string, done bool, assigneeID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE todos SET title=$2, done=$3, assignee_id=$4, updated_at=NOW() WHERE id=$1
	`, todoID, title, done, assigneeID)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTodo(ctx context.Context, todoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id=$1`, todoID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return nil
}

// --- invites ---

func (s *PostgresStore) InsertInvite(ctx context.Context, invite Invite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (id, travel_id, token_hash, role, email, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, invite.ID, invite.TravelID, invite.TokenHash, invite.Role, invite.Email, invite.CreatedBy, invite.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// LookupInvite returns a pending, unexpired invite by its token hash.
func (s *PostgresStore) LookupInvite(ctx context.Context, tokenHash string) (Invite, error) {
	var item Invite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, travel_id, token_hash, role, email, created_by, accepted_by, accepted_at, expires_at, created_at
		FROM invites
		WHERE token_hash=$1 AND accepted_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(
		&item.ID,
		&item.TravelID,
		&item.TokenHash,
		&item.Role,
		&item.Email,
		&item.CreatedBy,
		&item.AcceptedBy,
		&item.AcceptedAt,
		&item.ExpiresAt,
		&item.CreatedAt,
	)
	if err != nil {
		return Invite{}, err
	}
	return item, nil
}

// MarkInviteAccepted claims an invite for a user. Returns false if the
// invite was already accepted or has expired in the meantime.
func (s *PostgresStore) MarkInviteAccepted(ctx context.Context, inviteID, userID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invites
		SET accepted_by=$2, accepted_at=$3
		WHERE id=$1 AND accepted_at IS NULL AND expires_at > NOW()
	`, inviteID, userID, at)
	if err != nil {
		return false, fmt.Errorf("accept invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept invite rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context, travelID string) ([]Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_id, token_hash, role, email, created_by, accepted_by, accepted_at, expires_at, created_at
		FROM invites
		WHERE travel_id=$1
		ORDER BY created_at DESC
	`, travelID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	items := make([]Invite, 0)
	for rows.Next() {
		var item Invite
		if err := rows.Scan(
			&item.ID,
			&item.TravelID,
			&item.TokenHash,
			&item.Role,
			&item.Email,
			&item.CreatedBy,
			&item.AcceptedBy,
			&item.AcceptedAt,
			&item.ExpiresAt,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return items, nil
}
