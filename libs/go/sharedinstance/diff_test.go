package sharedinstance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

func TestDiffVersions(t *testing.T) {
	add, remove := diffVersions([]int64{1, 2, 3}, []int64{2, 3, 4})
	assert.ElementsMatch(t, []int64{4}, add)
	assert.ElementsMatch(t, []int64{1}, remove)
}

func TestDiffVersionsIdentical(t *testing.T) {
	add, remove := diffVersions([]int64{1, 2}, []int64{1, 2})
	assert.Empty(t, add)
	assert.Empty(t, remove)
}

func TestInboundPlan_AddsMissingVersionAndOverride(t *testing.T) {
	local := LocalProfile{
		ProjectVersions: []int64{1},
		Overrides: []LocalOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
		},
	}
	server := db.SharedInstance{
		Versions: []db.SharedInstanceVersion{{VersionID: 1}, {VersionID: 2}},
		Overrides: []db.SharedInstanceOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
			{InstallPath: "config/b.json", Sha512: "bbb"},
		},
	}

	plan := inboundPlan(local, server)
	assert.ElementsMatch(t, []int64{2}, plan.AddVersions)
	assert.Empty(t, plan.RemoveVersions)
	assert.Len(t, plan.AddOverrides, 1)
	assert.Equal(t, "config/b.json", plan.AddOverrides[0].InstallPath)
	assert.Empty(t, plan.RemoveOverrides)
}

func TestInboundPlan_RemovesLocalOnlyEntries(t *testing.T) {
	local := LocalProfile{
		ProjectVersions: []int64{1, 2},
		Overrides: []LocalOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
			{InstallPath: "config/stale.json", Sha512: "zzz"},
		},
	}
	server := db.SharedInstance{
		Versions: []db.SharedInstanceVersion{{VersionID: 1}},
		Overrides: []db.SharedInstanceOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
		},
	}

	plan := inboundPlan(local, server)
	assert.ElementsMatch(t, []int64{2}, plan.RemoveVersions)
	assert.Len(t, plan.RemoveOverrides, 1)
	assert.Equal(t, "config/stale.json", plan.RemoveOverrides[0].InstallPath)
}

func TestOutboundPlan_MirrorsInbound(t *testing.T) {
	local := LocalProfile{
		ProjectVersions: []int64{1, 3},
		Overrides: []LocalOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
			{InstallPath: "config/new.json", Sha512: "new"},
		},
	}
	server := db.SharedInstance{
		Versions: []db.SharedInstanceVersion{{VersionID: 1}, {VersionID: 2}},
		Overrides: []db.SharedInstanceOverride{
			{InstallPath: "config/a.json", Sha512: "aaa"},
			{InstallPath: "config/old.json", Sha512: "old"},
		},
	}

	plan := outboundPlan(local, server)
	assert.ElementsMatch(t, []int64{3}, plan.AddVersions)
	assert.ElementsMatch(t, []int64{2}, plan.RemoveVersions)
	assert.Len(t, plan.UploadOverrides, 1)
	assert.Equal(t, "config/new.json", plan.UploadOverrides[0].InstallPath)
	assert.Len(t, plan.DropOverrides, 1)
	assert.Equal(t, "config/old.json", plan.DropOverrides[0].InstallPath)
}

func TestOverrideKeyRequiresBothPathAndHashMatch(t *testing.T) {
	local := LocalProfile{
		Overrides: []LocalOverride{{InstallPath: "config/a.json", Sha512: "aaa"}},
	}
	server := db.SharedInstance{
		Overrides: []db.SharedInstanceOverride{{InstallPath: "config/a.json", Sha512: "different"}},
	}

	plan := inboundPlan(local, server)
	assert.Len(t, plan.AddOverrides, 1, "a hash mismatch on the same path is treated as a different file")
	assert.Len(t, plan.RemoveOverrides, 1)
}
