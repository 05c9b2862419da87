package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mytesting "messager/internal/testing"
)

const testDefaultChannel = "main"

func bootstrap(t *testing.T) *Store {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	s, err := New(context.Background(), logger.Sugar(), TestConfig, testDefaultChannel)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureDefaults(context.Background(), "admin"))

	return s
}

func createTestUser(t *testing.T, s *Store) User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), mytesting.RandString(), "", false)
	require.NoError(t, err)

	return u
}

func TestCreateUser(t *testing.T) {
	s := bootstrap(t)

	u := createTestUser(t, s)
	require.NotZero(t, u.ID)
	require.False(t, u.IsAdmin)
}

func TestCreateUserExists(t *testing.T) {
	s := bootstrap(t)

	username := mytesting.RandString()
	_, err := s.CreateUser(context.Background(), username, "", false)
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), username, "", false)
	require.ErrorIs(t, err, ErrUserExists)
}

func TestCreateUserJoinsDefaultChannel(t *testing.T) {
	s := bootstrap(t)

	u := createTestUser(t, s)

	channels, err := s.ChannelsVisibleTo(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, testDefaultChannel, channels[0].Name)
	require.True(t, channels[0].IsMember(u.ID))
}

func TestCreateChannel(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, c.CreatedBy)
	require.True(t, c.IsMember(u.ID))
}

func TestCreateChannelExists(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	name := mytesting.RandString()
	_, err := s.CreateChannel(context.Background(), name, u.ID)
	require.NoError(t, err)
	_, err = s.CreateChannel(context.Background(), name, u.ID)
	require.ErrorIs(t, err, ErrChannelExists)
}

func TestCreateChannelConcurrentSameName(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	name := mytesting.RandString()

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateChannel(context.Background(), name, u.ID)
		}(i)
	}
	wg.Wait()

	var created, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrChannelExists):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, racers-1, duplicates)
}

func TestCreateChannelEmptyName(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	_, err := s.CreateChannel(context.Background(), "", u.ID)
	require.ErrorIs(t, err, ErrEmptyName)
}

func TestAddMemberIdempotent(t *testing.T) {
	s := bootstrap(t)
	creator := createTestUser(t, s)
	member := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), creator.ID)
	require.NoError(t, err)

	added, err := s.AddMember(context.Background(), c.ID, member.ID)
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.AddMember(context.Background(), c.ID, member.ID)
	require.NoError(t, err)
	require.False(t, added)

	got, err := s.ChannelByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, got.MemberIDs, 2)
}

func TestRemoveMemberNoopWhenAbsent(t *testing.T) {
	s := bootstrap(t)
	creator := createTestUser(t, s)
	stranger := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), creator.ID)
	require.NoError(t, err)

	require.NoError(t, s.RemoveMember(context.Background(), c.ID, stranger.ID))

	got, err := s.ChannelByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{creator.ID}, got.MemberIDs)
}

func TestReconcileDefaultMembershipIdempotent(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	require.NoError(t, s.ReconcileDefaultMembership(context.Background()))
	require.NoError(t, s.ReconcileDefaultMembership(context.Background()))

	channels, err := s.ChannelsVisibleTo(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, channels, 1)

	var count int
	for _, id := range channels[0].MemberIDs {
		if id == u.ID {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestDeleteChannelCascades(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)

	m, err := s.CreateMessage(context.Background(), c.ID, u.ID, "hello", "", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteChannel(context.Background(), c.ID))

	_, err = s.ChannelByID(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrChannelNotExist)

	_, err = s.MessagesByChannelID(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrChannelNotExist)

	_, err = s.MessageByID(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrMessageNotExist)
}

func TestDeleteDefaultChannelRefused(t *testing.T) {
	s := bootstrap(t)

	channels, err := s.ChannelsVisibleTo(context.Background(), User{IsAdmin: true})
	require.NoError(t, err)

	var defaultID int64
	for _, c := range channels {
		if c.Name == testDefaultChannel {
			defaultID = c.ID
		}
	}
	require.NotZero(t, defaultID)

	require.ErrorIs(t, s.DeleteChannel(context.Background(), defaultID), ErrCannotDeleteDefault)
}

func TestCreateMessageDenormalizesUsername(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)

	m, err := s.CreateMessage(context.Background(), c.ID, u.ID, "hi there", "", "")
	require.NoError(t, err)
	require.Equal(t, u.Username, m.Username)
	require.NotZero(t, m.ID)
}

func TestMessageOrdering(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 5; i++ {
		m, err := s.CreateMessage(context.Background(), c.ID, u.ID, mytesting.RandString(), "", "")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	messages, err := s.MessagesByChannelID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	for i, m := range messages {
		require.Equal(t, ids[i], m.ID)
		if i > 0 {
			require.Greater(t, m.ID, messages[i-1].ID)
		}
	}
}

func TestConcurrentAppendsKeepIdOrder(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := s.CreateMessage(context.Background(), c.ID, u.ID, mytesting.RandString(), "", "")
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	messages, err := s.MessagesByChannelID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, messages, writers*5)

	for i := 1; i < len(messages); i++ {
		require.Greater(t, messages[i].ID, messages[i-1].ID)
	}
}

func TestChannelsVisibleToStableOrder(t *testing.T) {
	s := bootstrap(t)
	u := createTestUser(t, s)

	for i := 0; i < 3; i++ {
		_, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
		require.NoError(t, err)
	}

	first, err := s.ChannelsVisibleTo(context.Background(), u)
	require.NoError(t, err)
	second, err := s.ChannelsVisibleTo(context.Background(), u)
	require.NoError(t, err)

	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		require.Greater(t, first[i].ID, first[i-1].ID)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := bootstrap(t)
	admin, err := s.UserByUsername(context.Background(), "admin")
	require.NoError(t, err)

	u := createTestUser(t, s)
	c, err := s.CreateChannel(context.Background(), mytesting.RandString(), u.ID)
	require.NoError(t, err)
	m, err := s.CreateMessage(context.Background(), c.ID, u.ID, "bye", "", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(context.Background(), u.ID, admin.ID))

	_, err = s.UserByID(context.Background(), u.ID)
	require.ErrorIs(t, err, ErrUserNotExist)

	_, err = s.MessageByID(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrMessageNotExist)

	// created channel survives, reassigned to the acting admin
	got, err := s.ChannelByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, admin.ID, got.CreatedBy)
}
