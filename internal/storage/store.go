package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"messager/internal/storage/zapadapter"
)

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotExist        = errors.New("user does not exist")
	ErrChannelExists       = errors.New("channel already exists")
	ErrChannelNotExist     = errors.New("channel does not exist")
	ErrMessageNotExist     = errors.New("message does not exist")
	ErrCannotDeleteDefault = errors.New("default channel cannot be deleted")
	ErrEmptyName           = errors.New("name must be non-empty")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool

	defaultChannel string
}

// New sets provided zap logger via zapadapter on the pool config and returns
// an instance of Store bound to the named default channel.
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, defaultChannel string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger:         logger,
		db:             pool,
		defaultChannel: defaultChannel,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// DefaultChannelName returns the name of the protected bootstrap channel
func (s *Store) DefaultChannelName() string {
	return s.defaultChannel
}

// CreateUser creates a user and reconciles default-channel membership so the
// new user can immediately read the bootstrap channel.
func (s *Store) CreateUser(ctx context.Context, username, email string, isAdmin bool) (User, error) {
	s.logger.Debugf("Creating user (%s)", username)

	if username == "" {
		return User{}, ErrEmptyName
	}

	var u User
	u.Username = username
	u.Email = email
	u.IsAdmin = isAdmin

	var emailValue interface{}
	if email != "" {
		emailValue = email
	}

	sql := "insert into users (username, email, is_admin, created_at) values ($1, $2, $3, $4) returning id, created_at"
	err := s.db.QueryRow(ctx, sql, username, emailValue, isAdmin, time.Now()).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, err
	}

	if err := s.ReconcileDefaultMembership(ctx); err != nil {
		return User{}, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, u.ID)

	return u, nil
}

// UserByID returns the user with the given id
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	sql := "select id, username, coalesce(email, ''), is_admin, created_at from users where id = $1"
	return s.scanUser(s.db.QueryRow(ctx, sql, id))
}

// UserByUsername returns the user with the given username (case-sensitive)
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	sql := "select id, username, coalesce(email, ''), is_admin, created_at from users where username = $1"
	return s.scanUser(s.db.QueryRow(ctx, sql, username))
}

func (s *Store) scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}
	return u, nil
}

// Users returns all users ordered by id
func (s *Store) Users(ctx context.Context) ([]User, error) {
	sql := "select id, username, coalesce(email, ''), is_admin, created_at from users order by id asc"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// UserUpdate carries the optional fields an admin may change on a user
type UserUpdate struct {
	Email   *string
	IsAdmin *bool
}

// UpdateUser applies the non-nil fields of upd to the user with the given id
func (s *Store) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	s.logger.Debugf("Updating user (id: %d)", id)

	if upd.Email != nil {
		var emailValue interface{}
		if *upd.Email != "" {
			emailValue = *upd.Email
		}
		if _, err := s.db.Exec(ctx, "update users set email = $1 where id = $2", emailValue, id); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return User{}, ErrUserExists
			}
			return User{}, err
		}
	}
	if upd.IsAdmin != nil {
		if _, err := s.db.Exec(ctx, "update users set is_admin = $1 where id = $2", *upd.IsAdmin, id); err != nil {
			return User{}, err
		}
	}

	return s.UserByID(ctx, id)
}

// DeleteUser removes the user and everything hanging off it: messages and
// memberships are deleted, channels the user created are reassigned to the
// acting admin so their history survives.
func (s *Store) DeleteUser(ctx context.Context, id, actorID int64) error {
	s.logger.Debugf("Deleting user (id: %d)", id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions
	defer tx.Rollback(context.Background())

	if _, err := tx.Exec(ctx, "delete from messages where author_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "delete from channel_members where user_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "delete from audit_logs where user_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "update channels set created_by = $1 where created_by = $2", actorID, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, "delete from users where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotExist
	}

	return tx.Commit(ctx)
}

// ReconcileDefaultMembership ensures every existing user is a member of the
// default channel. Safe to call repeatedly: already-present rows are skipped.
func (s *Store) ReconcileDefaultMembership(ctx context.Context) error {
	sql := `insert into channel_members (user_id, channel_id)
			select users.id, channels.id
			  from users
			 cross join channels
			 where channels.name = $1
			on conflict do nothing`
	tag, err := s.db.Exec(ctx, sql, s.defaultChannel)
	if err != nil {
		return err
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debugf("Reconciled %d users into default channel (%s)", n, s.defaultChannel)
	}

	return nil
}

// AppendAudit records an administrative action. Failures are logged and
// swallowed so bookkeeping never blocks the mutation it describes.
func (s *Store) AppendAudit(ctx context.Context, actorID int64, action, details string) {
	sql := "insert into audit_logs (user_id, action, details, created_at) values ($1, $2, $3, $4)"
	if _, err := s.db.Exec(ctx, sql, actorID, action, details, time.Now()); err != nil {
		s.logger.Errorf("appending audit record (%s): %v", action, err)
	}
}
