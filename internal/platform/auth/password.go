package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/db"
)

var (
	ErrPasswordRequired = errors.New("password confirmation required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUnknownUser      = errors.New("unknown user")
)

// CredentialStore loads the bcrypt hash for a user.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// PasswordVerifier re-authenticates the current user before destructive
// actions such as deleting a billed appointment.
type PasswordVerifier struct {
	store CredentialStore
}

func NewPasswordVerifier(store CredentialStore) *PasswordVerifier {
	return &PasswordVerifier{store: store}
}

func (v *PasswordVerifier) Verify(ctx context.Context, userID, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	hash, err := v.store.PasswordHash(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return ErrInvalidPassword
	}
	if err != nil {
		return fmt.Errorf("auth: load credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// PGCredentialStore reads app_user in the current clinic schema.
type PGCredentialStore struct {
	db db.DBTX
}

func NewPGCredentialStore(conn db.DBTX) *PGCredentialStore {
	return &PGCredentialStore{db: conn}
}

func (s *PGCredentialStore) PasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := db.Conn(ctx, s.db).QueryRow(ctx,
		`SELECT password_hash FROM app_user WHERE id::text = $1`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("auth: select password hash: %w", err)
	}
	return hash, nil
}

// CreateUser inserts an app_user with a bcrypt hash of password.
func (s *PGCredentialStore) CreateUser(ctx context.Context, id, email, password, role string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = db.Conn(ctx, s.db).Exec(ctx,
		`INSERT INTO app_user (id, email, password_hash, role) VALUES ($1, $2, $3, $4)`,
		id, email, hash, role)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("auth: user %s already exists", email)
	}
	if err != nil {
		return fmt.Errorf("auth: insert user: %w", err)
	}
	return nil
}
