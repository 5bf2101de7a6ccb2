package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/util"
)

func TestGroupService_CreateMakesOwnerAdmin(t *testing.T) {
	repo := newMemGroups()
	svc := NewGroupService(repo)
	ctx := context.Background()

	g, err := svc.Create(ctx, "owner", "Biology", "cells and such", "")
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)

	role, ok, err := repo.RoleOf(ctx, g.ID, "owner")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.GroupRoleAdmin, role)
}

func TestGroupService_Subgroups(t *testing.T) {
	repo := newMemGroups()
	svc := NewGroupService(repo)
	ctx := context.Background()

	parent, err := svc.Create(ctx, "owner", "Biology", "", "")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, "member", parent.ID))

	_, err = svc.Create(ctx, "member", "Genetics", "", parent.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)

	child, err := svc.Create(ctx, "owner", "Genetics", "", parent.ID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	_, err = svc.Create(ctx, "owner", "Alleles", "", child.ID)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	_, err = svc.Create(ctx, "owner", "Orphan", "", "missing")
	assert.ErrorIs(t, err, util.ErrGroupNotFound)

	subs, err := svc.Subgroups(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, subs)
}

func TestGroupService_LastAdminCannotLeave(t *testing.T) {
	repo := newMemGroups()
	svc := NewGroupService(repo)
	ctx := context.Background()

	g, err := svc.Create(ctx, "owner", "Chemistry", "", "")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, "member", g.ID))

	assert.ErrorIs(t, svc.Leave(ctx, "owner", g.ID), util.ErrLastAdmin)

	require.NoError(t, svc.SetRole(ctx, "owner", g.ID, "member", model.GroupRoleAdmin))
	require.NoError(t, svc.Leave(ctx, "owner", g.ID))

	ok, err := repo.IsMember(ctx, g.ID, "owner")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupService_SetRole(t *testing.T) {
	repo := newMemGroups()
	svc := NewGroupService(repo)
	ctx := context.Background()

	g, err := svc.Create(ctx, "owner", "Physics", "", "")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, "member", g.ID))

	testCases := []struct {
		name   string
		actor  string
		target string
		role   model.GroupRole
		want   error
	}{
		{"member cannot promote", "member", "member", model.GroupRoleAdmin, util.ErrForbidden},
		{"unknown role", "owner", "member", model.GroupRole("root"), util.ErrInvalidConfig},
		{"last admin cannot demote self", "owner", "owner", model.GroupRoleMember, util.ErrLastAdmin},
		{"unknown target", "owner", "ghost", model.GroupRoleMember, util.ErrUserNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.SetRole(ctx, tc.actor, g.ID, tc.target, tc.role), tc.want)
		})
	}

	require.NoError(t, svc.SetRole(ctx, "owner", g.ID, "member", model.GroupRoleAdmin))
	require.NoError(t, svc.SetRole(ctx, "member", g.ID, "owner", model.GroupRoleMember))
	role, _, _ := repo.RoleOf(ctx, g.ID, "owner")
	assert.Equal(t, model.GroupRoleMember, role)
}

func TestGroupService_MembersRequiresMembership(t *testing.T) {
	repo := newMemGroups()
	svc := NewGroupService(repo)
	ctx := context.Background()

	g, err := svc.Create(ctx, "owner", "History", "", "")
	require.NoError(t, err)

	_, err = svc.Members(ctx, "outsider", g.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)

	members, err := svc.Members(ctx, "owner", g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	assert.ErrorIs(t, svc.Join(ctx, "u1", "missing"), util.ErrGroupNotFound)
}
