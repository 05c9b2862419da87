package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// channel queries aggregate the member set in one round trip so callers get a
// Channel value complete enough for the access predicates.
const channelSelect = `
	select channels.id,
		   channels.name,
		   channels.created_by,
		   channels.created_at,
		   coalesce(array_agg(channel_members.user_id) filter (where channel_members.user_id is not null), '{}') as member_ids
	  from channels
	  left join channel_members
		on channel_members.channel_id = channels.id`

// CreateChannel creates a channel and adds the creator as its first member in
// one transaction. Name collisions surface as ErrChannelExists via the unique
// index, so two racing creates resolve with exactly one winner.
func (s *Store) CreateChannel(ctx context.Context, name string, creatorID int64) (Channel, error) {
	s.logger.Debugf("Creating channel (%s) for user (id: %d)", name, creatorID)

	if name == "" {
		return Channel{}, ErrEmptyName
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Channel{}, err
	}
	defer tx.Rollback(context.Background())

	c := Channel{Name: name, CreatedBy: creatorID, MemberIDs: []int64{creatorID}}

	sql := "insert into channels (name, created_by, created_at) values ($1, $2, $3) returning id, created_at"
	err = tx.QueryRow(ctx, sql, name, creatorID, time.Now()).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return Channel{}, ErrChannelExists
			case pgerrcode.ForeignKeyViolation:
				return Channel{}, ErrUserNotExist
			}
		}
		return Channel{}, err
	}

	_, err = tx.Exec(ctx, "insert into channel_members (user_id, channel_id) values ($1, $2)", creatorID, c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return Channel{}, ErrUserNotExist
		}
		return Channel{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Channel{}, err
	}

	s.logger.Debugf("Created channel (%s) with id %d", name, c.ID)

	return c, nil
}

// ChannelByID returns the channel with its member set
func (s *Store) ChannelByID(ctx context.Context, id int64) (Channel, error) {
	sql := channelSelect + `
	 where channels.id = $1
	 group by channels.id`

	return s.scanChannel(s.db.QueryRow(ctx, sql, id))
}

func (s *Store) scanChannel(row pgx.Row) (Channel, error) {
	var c Channel
	var members pgtype.Int8Array

	err := row.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt, &members)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrChannelNotExist
		}
		return Channel{}, err
	}

	if err := members.AssignTo(&c.MemberIDs); err != nil {
		return Channel{}, err
	}

	return c, nil
}

// ChannelsVisibleTo returns every channel for admins, otherwise the channels
// the user created or is a member of. Ordered by id ascending; callers may
// rely on that order being stable.
func (s *Store) ChannelsVisibleTo(ctx context.Context, user User) ([]Channel, error) {
	s.logger.Debugf("Retrieving channels visible to user (id: %d)", user.ID)

	sql := channelSelect + `
	 group by channels.id
	 order by channels.id asc`
	args := []interface{}{}

	if !user.IsAdmin {
		sql = channelSelect + `
	 where channels.created_by = $1
		or exists (
			select 1 from channel_members visible
			 where visible.channel_id = channels.id
			   and visible.user_id = $1
		)
	 group by channels.id
	 order by channels.id asc`
		args = append(args, user.ID)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		c, err := s.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d channels", len(channels))

	return channels, nil
}

// DeleteChannel removes the channel together with its messages and
// memberships. The default channel is refused regardless of the caller.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	s.logger.Debugf("Deleting channel (id: %d)", id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	var name string
	err = tx.QueryRow(ctx, "select name from channels where id = $1 for update", id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrChannelNotExist
		}
		return err
	}
	if name == s.defaultChannel {
		return ErrCannotDeleteDefault
	}

	if _, err := tx.Exec(ctx, "delete from messages where channel_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "delete from channel_members where channel_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "delete from channels where id = $1", id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AddMember adds the user to the channel. Adding an existing member is a
// no-op; the returned bool reports whether a row was actually inserted.
func (s *Store) AddMember(ctx context.Context, channelID, userID int64) (bool, error) {
	s.logger.Debugf("Adding user (id: %d) to channel (id: %d)", userID, channelID)

	sql := "insert into channel_members (user_id, channel_id) values ($1, $2) on conflict do nothing"
	tag, err := s.db.Exec(ctx, sql, userID, channelID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "channel_members_channel_id_fkey":
				return false, ErrChannelNotExist
			case "channel_members_user_id_fkey":
				return false, ErrUserNotExist
			}
		}
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// RemoveMember removes the user from the channel; removing a non-member is a no-op
func (s *Store) RemoveMember(ctx context.Context, channelID, userID int64) error {
	s.logger.Debugf("Removing user (id: %d) from channel (id: %d)", userID, channelID)

	_, err := s.db.Exec(ctx, "delete from channel_members where user_id = $1 and channel_id = $2", userID, channelID)
	return err
}

// EnsureDefaults creates the bootstrap admin and the default channel when they
// are missing, then reconciles every user into the default channel. Idempotent.
func (s *Store) EnsureDefaults(ctx context.Context, adminUsername string) error {
	admin, err := s.UserByUsername(ctx, adminUsername)
	if errors.Is(err, ErrUserNotExist) {
		admin, err = s.CreateUser(ctx, adminUsername, "", true)
		if errors.Is(err, ErrUserExists) {
			// lost a bootstrap race to another instance
			admin, err = s.UserByUsername(ctx, adminUsername)
		}
		if err != nil {
			return err
		}
		s.logger.Infof("Bootstrap admin (%s) ensured", adminUsername)
	} else if err != nil {
		return err
	}

	_, err = s.CreateChannel(ctx, s.defaultChannel, admin.ID)
	if err != nil && !errors.Is(err, ErrChannelExists) {
		return err
	}
	if err == nil {
		s.logger.Infof("Default channel (%s) created", s.defaultChannel)
	}

	return s.ReconcileDefaultMembership(ctx)
}
