package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"go.uber.org/zap"
)

var ErrUserNotFound = errors.New("user not found")

// Store is a read-mostly directory over the users table. Registration and
// authentication live in the account subsystem; the marketplace core only
// needs identity, role and city.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone_number, user_type, city, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.UserType, &u.City, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone_number, user_type, city, created_at
		 FROM users WHERE phone_number = $1`, phone).
		Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.UserType, &u.City, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
