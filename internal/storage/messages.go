package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

// CreateMessage appends a message to the channel's log and returns it with
// the author's username denormalized. Identifiers come from the messages
// sequence, so concurrent appends still observe strictly increasing ids.
func (s *Store) CreateMessage(ctx context.Context, channelID, authorID int64, content, imageURL, thumbnailURL string) (Message, error) {
	s.logger.Debugf("Creating message from user (id: %d) in channel (id: %d)", authorID, channelID)

	m := Message{
		ChannelID:    channelID,
		AuthorID:     authorID,
		Content:      content,
		ImageURL:     imageURL,
		ThumbnailURL: thumbnailURL,
	}

	// created_at comes from the database clock; ordering authority stays
	// with the id sequence either way
	sql := `insert into messages (channel_id, author_id, content, image_url, thumbnail_url, created_at)
			values ($1, $2, $3, nullif($4, ''), nullif($5, ''), now())
			returning id, created_at, (select username from users where id = $2)`
	err := s.db.QueryRow(ctx, sql, channelID, authorID, content, imageURL, thumbnailURL).
		Scan(&m.ID, &m.CreatedAt, &m.Username)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "messages_channel_id_fkey":
				return Message{}, ErrChannelNotExist
			case "messages_author_id_fkey":
				return Message{}, ErrUserNotExist
			}
		}
		return Message{}, err
	}

	return m, nil
}

// MessageByID returns a single message with its author's username
func (s *Store) MessageByID(ctx context.Context, id int64) (Message, error) {
	sql := `select messages.id,
				   messages.channel_id,
				   messages.author_id,
				   messages.content,
				   coalesce(messages.image_url, ''),
				   coalesce(messages.thumbnail_url, ''),
				   users.username,
				   messages.created_at
			  from messages
			  join users
				on users.id = messages.author_id
			 where messages.id = $1`

	var m Message
	err := s.db.QueryRow(ctx, sql, id).
		Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ImageURL, &m.ThumbnailURL, &m.Username, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotExist
		}
		return Message{}, err
	}

	return m, nil
}

// DeleteMessage removes the message with the given id
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	s.logger.Debugf("Deleting message (id: %d)", id)

	tag, err := s.db.Exec(ctx, "delete from messages where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotExist
	}

	return nil
}

// MessagesByChannelID returns all channel messages in append order with
// author usernames attached. Ids come from the messages sequence, so sorting
// by id alone reproduces commit order exactly.
func (s *Store) MessagesByChannelID(ctx context.Context, channelID int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for channel (id: %d)", channelID)

	// check if channel exists
	var i int8
	err := s.db.QueryRow(ctx, "select 1 from channels where id = $1", channelID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotExist
		}
		return nil, err
	}

	sql := `select messages.id,
				   messages.channel_id,
				   messages.author_id,
				   messages.content,
				   coalesce(messages.image_url, ''),
				   coalesce(messages.thumbnail_url, ''),
				   users.username,
				   messages.created_at
			  from messages
			  join users
				on users.id = messages.author_id
			 where messages.channel_id = $1
			 order by messages.id asc`

	rows, err := s.db.Query(ctx, sql, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ImageURL, &m.ThumbnailURL, &m.Username, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}
