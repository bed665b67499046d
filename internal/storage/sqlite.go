package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/DobryySoul/meshsync/model"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meal_plans (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			week_number INTEGER NOT NULL,
			year INTEGER NOT NULL,
			meals TEXT NOT NULL DEFAULT '{}',
			version INTEGER NOT NULL DEFAULT 1,
			last_modified TEXT NOT NULL,
			last_modified_by TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE INDEX IF NOT EXISTS idx_meal_plans_week ON meal_plans(user_id, year, week_number);
	`)
	return err
}

const userColumns = `id, username, password_hash, name, role, created_at, created_by, version, updated_at`

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("storage: get user %s: %w", id, err)
	}
	return u, nil
}

func (s *SQLiteStore) InsertUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.PasswordHash, u.Name, string(u.Role),
		formatTime(u.CreatedAt), u.CreatedBy, u.Version, formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage: insert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, password_hash = ?, name = ?, role = ?, created_at = ?,
		    created_by = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, u.Username, u.PasswordHash, u.Name, string(u.Role), formatTime(u.CreatedAt),
		u.CreatedBy, u.Version, formatTime(u.UpdatedAt), u.ID)
	if err != nil {
		return fmt.Errorf("storage: update user %s: %w", u.ID, err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const planColumns = `id, user_id, week_number, year, meals, version, last_modified, last_modified_by`

func (s *SQLiteStore) GetMealPlan(ctx context.Context, id string) (model.MealPlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM meal_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MealPlan{}, ErrNotFound
	}
	if err != nil {
		return model.MealPlan{}, fmt.Errorf("storage: get meal plan %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) InsertMealPlan(ctx context.Context, p model.MealPlan) error {
	meals, err := json.Marshal(p.Meals)
	if err != nil {
		return fmt.Errorf("storage: encode meals: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meal_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.WeekNumber, p.Year, string(meals), p.Version,
		formatTime(p.LastModified), p.LastModifiedBy)
	if err != nil {
		return fmt.Errorf("storage: insert meal plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMealPlan(ctx context.Context, p model.MealPlan) error {
	meals, err := json.Marshal(p.Meals)
	if err != nil {
		return fmt.Errorf("storage: encode meals: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE meal_plans
		SET user_id = ?, week_number = ?, year = ?, meals = ?, version = ?,
		    last_modified = ?, last_modified_by = ?
		WHERE id = ?
	`, p.UserID, p.WeekNumber, p.Year, string(meals), p.Version,
		formatTime(p.LastModified), p.LastModifiedBy, p.ID)
	if err != nil {
		return fmt.Errorf("storage: update meal plan %s: %w", p.ID, err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) MealPlans(ctx context.Context) ([]model.MealPlan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM meal_plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list meal plans: %w", err)
	}
	defer rows.Close()

	var plans []model.MealPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan meal plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var (
		u       model.User
		role    string
		created string
		updated string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &role,
		&created, &u.CreatedBy, &u.Version, &updated); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return model.User{}, fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return model.User{}, fmt.Errorf("user %s updated_at: %w", u.ID, err)
	}
	return u, nil
}

func scanPlan(row scanner) (model.MealPlan, error) {
	var (
		p        model.MealPlan
		meals    string
		modified string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.WeekNumber, &p.Year, &meals,
		&p.Version, &modified, &p.LastModifiedBy); err != nil {
		return model.MealPlan{}, err
	}
	if err := json.Unmarshal([]byte(meals), &p.Meals); err != nil {
		return model.MealPlan{}, fmt.Errorf("decode meals: %w", err)
	}
	var err error
	if p.LastModified, err = parseTime(modified); err != nil {
		return model.MealPlan{}, fmt.Errorf("meal plan %s last_modified: %w", p.ID, err)
	}
	return p, nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
