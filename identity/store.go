// Package identity persists the local users that verified claims resolve to.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/bearerkit/claims"
)

// ErrNoStorage is returned when the store was built without a pool.
var ErrNoStorage = errors.New("identity: no storage handle")

// User is the locally persisted identity a request resolves to. ID is the
// storage-assigned surrogate key; Subject is the IdP-scoped external
// subject and is unique.
type User struct {
	ID      int64  `json:"user_id"`
	Subject string `json:"external_subject"`
	Email   string `json:"email"`
	Name    string `json:"display_name"`
}

// Store reads and creates user rows. It never updates a row: claims seen
// after first provisioning are discarded, so profile drift at the IdP is
// not propagated.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

// NewStore creates a Store. An empty schema defaults to "public".
func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) usersTable() string { return s.schema + ".users" }

// Provision maps a claim set to a user row, creating the row on first
// sight of the subject. Absent claims get fixed placeholders: email
// "{subject}@unknown.local" and name "Unknown User".
//
// The insert uses ON CONFLICT DO NOTHING plus a re-read, so concurrent
// first logins for the same new subject converge on a single row instead
// of racing the unique constraint.
func (s *Store) Provision(ctx context.Context, set claims.Set) (User, error) {
	if s == nil || s.pg == nil {
		return User{}, ErrNoStorage
	}

	u, found, err := s.findBySubject(ctx, set.Subject)
	if err != nil {
		return User{}, fmt.Errorf("identity: lookup %q: %w", set.Subject, err)
	}
	if found {
		return u, nil
	}

	email := set.Email
	if email == "" {
		email = set.Subject + "@unknown.local"
	}
	name := set.Name
	if name == "" {
		name = "Unknown User"
	}

	err = s.pg.QueryRow(ctx,
		`INSERT INTO `+s.usersTable()+` (external_subject, email, display_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (external_subject) DO NOTHING
		 RETURNING user_id, external_subject, email, display_name`,
		set.Subject, email, name,
	).Scan(&u.ID, &u.Subject, &u.Email, &u.Name)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("identity: create %q: %w", set.Subject, err)
	}

	// No row returned means another resolution inserted it first.
	u, found, err = s.findBySubject(ctx, set.Subject)
	if err != nil {
		return User{}, fmt.Errorf("identity: re-read %q: %w", set.Subject, err)
	}
	if !found {
		return User{}, fmt.Errorf("identity: %q vanished after insert conflict", set.Subject)
	}
	return u, nil
}

func (s *Store) findBySubject(ctx context.Context, subject string) (User, bool, error) {
	var u User
	err := s.pg.QueryRow(ctx,
		`SELECT user_id, external_subject, email, display_name FROM `+s.usersTable()+` WHERE external_subject=$1 LIMIT 1`,
		subject,
	).Scan(&u.ID, &u.Subject, &u.Email, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}
