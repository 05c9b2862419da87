package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables the store works with when they are missing.
// Statements are idempotent so startup can run this unconditionally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`create table if not exists users (
			id bigserial primary key,
			username text not null unique,
			email text unique,
			is_admin boolean not null default false,
			created_at timestamptz not null default now()
		)`,
		`create table if not exists channels (
			id bigserial primary key,
			name text not null unique,
			created_by bigint not null references users (id),
			created_at timestamptz not null default now()
		)`,
		`create table if not exists channel_members (
			user_id bigint not null references users (id),
			channel_id bigint not null references channels (id),
			primary key (user_id, channel_id)
		)`,
		`create table if not exists messages (
			id bigserial primary key,
			channel_id bigint not null references channels (id),
			author_id bigint not null references users (id),
			content text not null,
			image_url text,
			thumbnail_url text,
			created_at timestamptz not null default now()
		)`,
		`create table if not exists audit_logs (
			id bigserial primary key,
			user_id bigint not null references users (id),
			action text not null,
			details text not null default '',
			created_at timestamptz not null default now()
		)`,
		`create index if not exists messages_channel_id_idx on messages (channel_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema exec failed: %w", err)
		}
	}

	return nil
}
