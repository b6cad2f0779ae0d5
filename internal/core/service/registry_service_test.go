package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

func TestRegister(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	in := ports.RegisterUserInput{
		Identity:    "0x52908400098527886e0f7030069857d2e4169ee7",
		DisplayName: "Erin",
		Contact:     "erin@example.com",
		Role:        domain.RoleUser,
	}

	_, err := f.registry.Register(ctx, alice, in)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	u, err := f.registry.Register(ctx, dave, in)
	require.NoError(t, err)
	assert.Equal(t, erin, u.Identity, "identity is stored in checksum form")
	assert.True(t, u.IsActive)

	_, err = f.registry.Register(ctx, dave, in)
	assert.ErrorIs(t, err, domain.ErrUserExists)
	assert.Equal(t, domain.KindAlreadyExists, domain.KindOf(err))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	cases := map[string]ports.RegisterUserInput{
		"identity":     {Identity: "0x123", DisplayName: "Erin", Contact: "erin@example.com"},
		"display_name": {Identity: erin, DisplayName: "E", Contact: "erin@example.com"},
		"contact":      {Identity: erin, DisplayName: "Erin", Contact: "not-an-email"},
		"role":         {Identity: erin, DisplayName: "Erin", Contact: "erin@example.com", Role: domain.Role(9)},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := f.registry.Register(ctx, dave, in)
			var fe *domain.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, field, fe.Field)
		})
	}
}

func TestUpdateRole_NonAdminLeavesUserUnchanged(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	for _, caller := range []string{alice, carol, erin} {
		_, err := f.registry.UpdateRole(ctx, caller, bob, domain.RoleAdmin)
		assert.Equal(t, domain.KindPermissionDenied, domain.KindOf(err), caller)
	}

	u, err := f.registry.Get(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, u.Role)
}

func TestUpdateRole_SameRoleIsNoOp(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	before, err := f.registry.Get(ctx, carol)
	require.NoError(t, err)

	u, err := f.registry.UpdateRole(ctx, dave, carol, domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, *before, *u)

	after, err := f.registry.Get(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, *before, *after)
}

func TestUpdateRole_VisibleToNextCheck(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	_, err := f.registry.Authorize(ctx, bob, domain.RoleManager)
	require.ErrorIs(t, err, domain.ErrForbidden)

	u, err := f.registry.UpdateRole(ctx, dave, bob, domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, u.Role)

	_, err = f.registry.Authorize(ctx, bob, domain.RoleManager)
	assert.NoError(t, err)

	_, err = f.registry.UpdateRole(ctx, dave, erin, domain.RoleManager)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	_, err := f.registry.Get(ctx, erin)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	u, err := f.registry.Get(ctx, "0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb")
	require.NoError(t, err)
	assert.Equal(t, alice, u.Identity)

	users, err := f.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, dave, users[0].Identity)
}

func TestBootstrap_SkipsExisting(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	created, err := f.registry.Bootstrap(ctx, []ports.BootstrapUser{
		{Identity: dave, DisplayName: "Dave again", Role: domain.RoleUser, Active: false},
		{Identity: erin, DisplayName: "Erin", Role: domain.RoleManager, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	u, err := f.registry.Get(ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.True(t, u.IsActive)

	_, err = f.registry.Bootstrap(ctx, []ports.BootstrapUser{{Identity: "nope"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
