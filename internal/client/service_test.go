package client_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/institutoandes/cobranza/internal/audit"
	"github.com/institutoandes/cobranza/internal/client"
)

func newService(repo *client.MockRepository) *client.Service {
	return client.NewService(repo, client.EditDistanceScorer{}, 0.62, 5)
}

func TestService_Create(t *testing.T) {
	actor := audit.Actor{Name: "maria", Origin: "test"}

	type testCase struct {
		name      string
		params    client.CreateParams
		setupMock func(m *client.MockRepository)
		wantErr   error
		verify    func(t *testing.T, c *client.Client)
	}

	existing := &client.Client{
		ID:        uuid.New(),
		Name:      "Hotel Diego De Almagro",
		SearchKey: "HOTEL DIEGO DE ALMAGRO",
	}

	tests := []testCase{
		{
			name:   "Success",
			params: client.CreateParams{Name: "  constructora   del PACÍFICO "},
			setupMock: func(m *client.MockRepository) {
				m.EXPECT().
					GetClientBySearchKey(gomock.Any(), "CONSTRUCTORA DEL PACIFICO").
					Return(nil, client.ErrNotFound)
				m.EXPECT().
					ListActiveClients(gomock.Any()).
					Return(nil, nil)
				m.EXPECT().
					CreateClient(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, c *client.Client, entry audit.Entry) error {
						assert.Equal(t, audit.ActionCreateClient, entry.Action)
						assert.Equal(t, "maria", entry.Actor)
						c.ID = uuid.New()
						return nil
					})
			},
			verify: func(t *testing.T, c *client.Client) {
				assert.Equal(t, "Constructora Del Pacífico", c.Name)
				assert.Equal(t, "CONSTRUCTORA DEL PACIFICO", c.SearchKey)
				assert.Equal(t, "maria", c.CreatedBy)
			},
		},
		{
			name: "AccentedContactCappedByRunes",
			params: client.CreateParams{
				Name: "Colegio San Andres",
				// 199 ASCII runes, then accented ones straddling the
				// 200-rune cap.
				Contact: strings.Repeat("x", 199) + "ñoño",
				Force:   true,
			},
			setupMock: func(m *client.MockRepository) {
				m.EXPECT().
					GetClientBySearchKey(gomock.Any(), "COLEGIO SAN ANDRES").
					Return(nil, client.ErrNotFound)
				m.EXPECT().
					CreateClient(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)
			},
			verify: func(t *testing.T, c *client.Client) {
				assert.True(t, utf8.ValidString(c.Contact))
				assert.Equal(t, 200, utf8.RuneCountInString(c.Contact))
				assert.True(t, strings.HasSuffix(c.Contact, "ñ"))
			},
		},
		{
			name:   "ExactDuplicate",
			params: client.CreateParams{Name: "hotel diego de almagro"},
			setupMock: func(m *client.MockRepository) {
				m.EXPECT().
					GetClientBySearchKey(gomock.Any(), "HOTEL DIEGO DE ALMAGRO").
					Return(existing, nil)
			},
			wantErr: &client.DuplicateClientError{},
		},
		{
			name:   "NearDuplicateWithoutForce",
			params: client.CreateParams{Name: "Hotel Diego De Almagra"},
			setupMock: func(m *client.MockRepository) {
				m.EXPECT().
					GetClientBySearchKey(gomock.Any(), "HOTEL DIEGO DE ALMAGRA").
					Return(nil, client.ErrNotFound)
				m.EXPECT().
					ListActiveClients(gomock.Any()).
					Return([]*client.Client{existing}, nil)
			},
			wantErr: &client.NearDuplicateError{},
		},
		{
			name:   "NearDuplicateForced",
			params: client.CreateParams{Name: "Hotel Diego De Almagra", Force: true},
			setupMock: func(m *client.MockRepository) {
				m.EXPECT().
					GetClientBySearchKey(gomock.Any(), "HOTEL DIEGO DE ALMAGRA").
					Return(nil, client.ErrNotFound)
				m.EXPECT().
					CreateClient(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := client.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			c, err := newService(repo).Create(context.Background(), tt.params, actor)

			if tt.wantErr != nil {
				require.Error(t, err)

				switch tt.wantErr.(type) {
				case *client.DuplicateClientError:
					var dup *client.DuplicateClientError
					assert.ErrorAs(t, err, &dup)
				case *client.NearDuplicateError:
					var near *client.NearDuplicateError
					assert.ErrorAs(t, err, &near)
					assert.NotEmpty(t, near.Suggestions)
				}

				return
			}

			require.NoError(t, err)

			if tt.verify != nil {
				tt.verify(t, c)
			}
		})
	}
}

func TestService_FindOrSuggest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exact := &client.Client{ID: uuid.New(), Name: "Sodimac", SearchKey: "SODIMAC"}
	near := &client.Client{ID: uuid.New(), Name: "Sodimac Sa", SearchKey: "SODIMAC SA"}
	far := &client.Client{ID: uuid.New(), Name: "Falabella", SearchKey: "FALABELLA"}

	repo := client.NewMockRepository(ctrl)
	repo.EXPECT().
		GetClientBySearchKey(gomock.Any(), "SODIMAC").
		Return(exact, nil)
	repo.EXPECT().
		ListActiveClients(gomock.Any()).
		Return([]*client.Client{exact, near, far}, nil)

	match, err := newService(repo).FindOrSuggest(context.Background(), "sodimac")
	require.NoError(t, err)

	require.NotNil(t, match.Exact)
	assert.Equal(t, exact.ID, match.Exact.ID)

	// The exact hit is excluded from suggestions; the distant name falls
	// below the threshold.
	require.Len(t, match.Suggestions, 1)
	assert.Equal(t, near.ID, match.Suggestions[0].Client.ID)
	assert.Greater(t, match.Suggestions[0].Score, 0.62)
}

func TestService_FindOrSuggest_EmptyName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	match, err := newService(client.NewMockRepository(ctrl)).FindOrSuggest(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, match.Exact)
	assert.Empty(t, match.Suggestions)
}

func TestService_Update_RenameCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	id := uuid.New()
	current := &client.Client{ID: id, Name: "Sodimac", SearchKey: "SODIMAC"}
	other := &client.Client{ID: uuid.New(), Name: "Falabella", SearchKey: "FALABELLA"}

	repo := client.NewMockRepository(ctrl)
	repo.EXPECT().GetClient(gomock.Any(), id).Return(current, nil)
	repo.EXPECT().
		GetClientBySearchKey(gomock.Any(), "FALABELLA").
		Return(other, nil)

	name := "Falabella"
	_, err := newService(repo).Update(context.Background(), id, client.UpdateParams{Name: &name}, audit.Actor{})

	var dup *client.DuplicateClientError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, other.ID, dup.Existing.ID)
}

func TestService_Merge(t *testing.T) {
	actor := audit.Actor{Name: "maria"}

	survivorID := uuid.New()
	absorbedID := uuid.New()

	t.Run("SameClient", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		_, err := newService(client.NewMockRepository(ctrl)).Merge(context.Background(), survivorID, survivorID, actor)
		assert.ErrorIs(t, err, client.ErrSameClient)
	})

	t.Run("AbsorbedAlreadyMerged", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := client.NewMockRepository(ctrl)
		repo.EXPECT().GetClient(gomock.Any(), survivorID).
			Return(&client.Client{ID: survivorID}, nil)
		repo.EXPECT().GetClient(gomock.Any(), absorbedID).
			Return(&client.Client{ID: absorbedID, MergedInto: &survivorID}, nil)

		_, err := newService(repo).Merge(context.Background(), survivorID, absorbedID, actor)
		assert.ErrorIs(t, err, client.ErrMerged)
	})

	t.Run("Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := client.NewMockRepository(ctrl)
		repo.EXPECT().GetClient(gomock.Any(), survivorID).
			Return(&client.Client{ID: survivorID, Name: "Sodimac"}, nil)
		repo.EXPECT().GetClient(gomock.Any(), absorbedID).
			Return(&client.Client{ID: absorbedID, Name: "Sodimac Sa"}, nil)
		repo.EXPECT().
			MergeClients(gomock.Any(), survivorID, absorbedID, gomock.Any()).
			Return(int64(7), nil)

		reassigned, err := newService(repo).Merge(context.Background(), survivorID, absorbedID, actor)
		require.NoError(t, err)
		assert.Equal(t, int64(7), reassigned)
	})

	t.Run("RepoError", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := client.NewMockRepository(ctrl)
		repo.EXPECT().GetClient(gomock.Any(), survivorID).
			Return(nil, errors.New("db error"))

		_, err := newService(repo).Merge(context.Background(), survivorID, absorbedID, actor)
		assert.Error(t, err)
	})
}

func TestService_Search_ShortWordsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := client.NewMockRepository(ctrl)
	repo.EXPECT().
		SearchClients(gomock.Any(), []string{"HOTEL", "DE", "ALMAGRO"}, 10).
		Return(nil, nil)

	_, err := newService(repo).Search(context.Background(), "hotel de almagro x", 0)
	require.NoError(t, err)
}
