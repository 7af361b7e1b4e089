// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNatsContactRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsContactRepository(newMockNatsKeyValue(), Codec{})

	created, err := repo.CreateContact(ctx, models.NewMeetingContact("Jane Roe", " Jane@Acme.io "))
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "jane@acme.io", created.Email)
	assert.NotNil(t, created.CreatedAt)

	found, err := repo.FindByEmail(ctx, "JANE@acme.IO")
	require.NoError(t, err)
	assert.Equal(t, created.UID, found.UID)
	assert.Equal(t, "Jane Roe", found.Name)
}

func TestNatsContactRepository_FindByEmailNotFound(t *testing.T) {
	repo := NewNatsContactRepository(newMockNatsKeyValue(), Codec{})

	_, err := repo.FindByEmail(context.Background(), "nobody@acme.io")

	assert.True(t, domain.IsNotFound(err))
	assert.ErrorIs(t, err, domain.ErrContactNotFound)
}

func TestNatsContactRepository_DuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsContactRepository(newMockNatsKeyValue(), Codec{})

	_, err := repo.CreateContact(ctx, models.NewMeetingContact("A", "a@acme.io"))
	require.NoError(t, err)

	_, err = repo.CreateContact(ctx, models.NewMeetingContact("A again", "A@ACME.io"))
	assert.True(t, domain.IsConflict(err))
	assert.ErrorIs(t, err, domain.ErrContactAlreadyExists)
}

func TestNatsContactRepository_ConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	repo := NewNatsContactRepository(kv, NewCodec(EncodingMsgpack))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateContact(ctx, models.NewMeetingContact("", "race@acme.io"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if domain.IsConflict(err) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
	assert.Equal(t, 2, kv.size(), "one index entry and one contact")
}

func TestNatsContactRepository_NoIndexWhenContactWriteFails(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	repo := NewNatsContactRepository(kv, Codec{})

	contact := models.NewMeetingContact("B", "b@acme.io")
	contact.UID = "fixed-uid"
	_, err := kv.Create(ctx, repo.keys.EntityKeyEncoded(KeyPrefixContact, "fixed-uid"), []byte(`{}`))
	require.NoError(t, err)

	_, err = repo.CreateContact(ctx, contact)
	require.Error(t, err)

	_, err = repo.GetIndex(ctx, repo.keys.IndexKeyEncoded(KeyPrefixIndexEmail, "b@acme.io"))
	assert.True(t, domain.IsNotFound(err), "email index is not claimed")
}

func TestNatsContactRepository_LosingCreatorRemovesItsContact(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	repo := NewNatsContactRepository(kv, Codec{})

	first, err := repo.CreateContact(ctx, models.NewMeetingContact("A", "a@acme.io"))
	require.NoError(t, err)

	loser := models.NewMeetingContact("A", "a@acme.io")
	loser.UID = "loser-uid"
	_, err = repo.CreateContact(ctx, loser)
	require.True(t, domain.IsConflict(err))

	_, err = repo.Get(ctx, repo.keys.EntityKeyEncoded(KeyPrefixContact, "loser-uid"))
	assert.True(t, domain.IsNotFound(err))
	found, err := repo.FindByEmail(ctx, "a@acme.io")
	require.NoError(t, err)
	assert.Equal(t, first.UID, found.UID)
}

func TestNatsContactRepository_StaleIndexIsReplaced(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	repo := NewNatsContactRepository(kv, Codec{})
	require.NoError(t, repo.CreateIndex(ctx, repo.keys.IndexKeyEncoded(KeyPrefixIndexEmail, "jane@acme.com"), "ghost-uid"))

	_, err := repo.FindByEmail(ctx, "jane@acme.com")
	require.True(t, domain.IsNotFound(err))

	created, err := repo.CreateContact(ctx, models.NewMeetingContact("Jane", "jane@acme.com"))
	require.NoError(t, err)
	assert.NotEqual(t, "ghost-uid", created.UID)

	found, err := repo.FindByEmail(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, created.UID, found.UID)
	assert.Equal(t, 2, kv.size(), "one index entry and one contact")

	_, err = repo.CreateContact(ctx, models.NewMeetingContact("Jane", "jane@acme.com"))
	assert.True(t, domain.IsConflict(err), "a live contact keeps its index")
}

func TestNatsContactRepository_StaleIndexRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	repo := NewNatsContactRepository(kv, Codec{})
	require.NoError(t, repo.CreateIndex(ctx, repo.keys.IndexKeyEncoded(KeyPrefixIndexEmail, "race@acme.com"), "ghost-uid"))

	const writers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateContact(ctx, models.NewMeetingContact("", "race@acme.com"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.True(t, domain.IsConflict(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, kv.size())
	_, err := repo.FindByEmail(ctx, "race@acme.com")
	assert.NoError(t, err)
}

func TestNatsContactRepository_StaleIndexDoesNotDropReconciledInvitee(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsContactRepository(newMockNatsKeyValue(), Codec{})
	require.NoError(t, repo.CreateIndex(ctx, repo.keys.IndexKeyEncoded(KeyPrefixIndexEmail, "jane@acme.com"), "ghost-uid"))
	reconciler := service.NewContactReconciler(repo, nil, nil)
	invitees := []models.ParticipantDescriptor{{Name: "Jane", Email: "jane@acme.com", IsExternal: true}}

	var primary string
	for delivery := 1; delivery <= 3; delivery++ {
		result, err := reconciler.Reconcile(ctx, invitees)
		require.NoError(t, err)
		require.Len(t, result.Participants, 1, "delivery %d", delivery)
		assert.Zero(t, result.Skipped)
		require.NotNil(t, result.PrimaryContactUID)
		if primary == "" {
			primary = *result.PrimaryContactUID
			assert.Equal(t, 1, result.ContactsCreated)
		}
		assert.Equal(t, primary, *result.PrimaryContactUID, "redeliveries link the same contact")
	}
}

func TestNatsContactRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsContactRepository(newMockNatsKeyValue(), Codec{})

	_, err := repo.FindByEmail(ctx, "  ")
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))

	_, err = repo.CreateContact(ctx, &models.Contact{Name: "no email"})
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestNatsContactRepository_BackendErrors(t *testing.T) {
	kv := newMockNatsKeyValue()
	kv.getError = errors.New("timeout")
	repo := NewNatsContactRepository(kv, Codec{})

	_, err := repo.FindByEmail(context.Background(), "a@acme.io")

	assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))
}
