package database

import (
	"context"
	"database/sql"
	"fmt"

	"campus-portal/app/models"
)

// GetUserByEmail loads an active user for login.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, password, first_name, last_name, is_active, created_at, updated_at
			  FROM users WHERE email = $1 AND is_active = true`

	err := db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Password, &user.FirstName,
		&user.LastName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserRoles returns the role names granted to a user.
func GetUserRoles(ctx context.Context, db *sql.DB, userID string) ([]*models.Role, error) {
	query := `
		SELECT r.id, r.name
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
	`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// CreateUser inserts an active user whose Password is already hashed and
// grants it the named roles.
func CreateUser(ctx context.Context, db *sql.DB, user *models.User, roles ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO users (email, password, first_name, last_name, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, true, NOW(), NOW())
			  RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query, user.Email, user.Password, user.FirstName, user.LastName).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, name := range roles {
		role := &models.Role{Name: name}
		err := tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&role.ID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("role %q does not exist", name)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, user.ID, role.ID); err != nil {
			return err
		}
		user.Roles = append(user.Roles, role)
	}

	user.IsActive = true
	return tx.Commit()
}

// UserStore adapts the user queries to the login handler.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (u *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return GetUserByEmail(ctx, u.db, email)
}

func (u *UserStore) GetUserRoles(ctx context.Context, userID string) ([]*models.Role, error) {
	return GetUserRoles(ctx, u.db, userID)
}
