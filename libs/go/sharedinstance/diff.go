package sharedinstance

import "github.com/labrinth-gg/labrinth/libs/go/db"

// LocalOverride describes one override file as the local client sees
// it; Data is only populated on the outbound (push) path.
type LocalOverride struct {
	InstallPath string
	Sha1        string
	Sha512      string
	Data        []byte
}

// LocalProfile is the client-supplied snapshot of a profile's state,
// carried in the request body rather than stored server-side.
type LocalProfile struct {
	Name            string
	Loader          string
	LoaderVersion   string
	GameVersion     string
	Icon            *string
	ProjectVersions []int64
	Overrides       []LocalOverride
}

// SyncPlan is the diff between a local profile and the server's
// recorded state, per spec §4.8's diff rule: an override is in sync
// iff install_path and sha512 both match; a version is in sync iff its
// id is present on both sides.
type SyncPlan struct {
	AddVersions     []int64
	RemoveVersions  []int64
	AddOverrides    []db.SharedInstanceOverride
	RemoveOverrides []LocalOverride
}

// diffVersions returns ids present in want but not have, and ids
// present in have but not want.
func diffVersions(have, want []int64) (add, remove []int64) {
	haveSet := make(map[int64]bool, len(have))
	for _, id := range have {
		haveSet[id] = true
	}
	wantSet := make(map[int64]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	for id := range wantSet {
		if !haveSet[id] {
			add = append(add, id)
		}
	}
	for id := range haveSet {
		if !wantSet[id] {
			remove = append(remove, id)
		}
	}
	return add, remove
}

func overrideKey(installPath, sha512 string) string {
	return installPath + "\x00" + sha512
}

// inboundPlan computes what a client pulling server state needs to
// do: drop local entries the server no longer has, fetch entries the
// server has that the local profile lacks.
func inboundPlan(local LocalProfile, server db.SharedInstance) SyncPlan {
	serverVersionIDs := make([]int64, len(server.Versions))
	for i, v := range server.Versions {
		serverVersionIDs[i] = v.VersionID
	}
	add, remove := diffVersions(local.ProjectVersions, serverVersionIDs)

	serverByKey := make(map[string]db.SharedInstanceOverride, len(server.Overrides))
	for _, o := range server.Overrides {
		serverByKey[overrideKey(o.InstallPath, o.Sha512)] = o
	}
	localByKey := make(map[string]LocalOverride, len(local.Overrides))
	for _, o := range local.Overrides {
		localByKey[overrideKey(o.InstallPath, o.Sha512)] = o
	}

	var addOverrides []db.SharedInstanceOverride
	for key, o := range serverByKey {
		if _, ok := localByKey[key]; !ok {
			addOverrides = append(addOverrides, o)
		}
	}
	var removeOverrides []LocalOverride
	for key, o := range localByKey {
		if _, ok := serverByKey[key]; !ok {
			removeOverrides = append(removeOverrides, o)
		}
	}

	return SyncPlan{
		AddVersions:     add,
		RemoveVersions:  remove,
		AddOverrides:    addOverrides,
		RemoveOverrides: removeOverrides,
	}
}

// OutboundPlan is the diff an owner's push applies to the server:
// version ids to add/drop, and overrides to upload (not yet present
// server-side) or drop (no longer present locally).
type OutboundPlan struct {
	AddVersions    []int64
	RemoveVersions []int64
	UploadOverrides []LocalOverride
	DropOverrides   []db.SharedInstanceOverride
}

// outboundPlan computes the same diff in the opposite direction: what
// the owner's local state has that the server doesn't (to push) and
// what the server has that local no longer does (to drop server-side).
func outboundPlan(local LocalProfile, server db.SharedInstance) OutboundPlan {
	serverVersionIDs := make([]int64, len(server.Versions))
	for i, v := range server.Versions {
		serverVersionIDs[i] = v.VersionID
	}
	add, remove := diffVersions(serverVersionIDs, local.ProjectVersions)

	serverByKey := make(map[string]db.SharedInstanceOverride, len(server.Overrides))
	for _, o := range server.Overrides {
		serverByKey[overrideKey(o.InstallPath, o.Sha512)] = o
	}
	localByKey := make(map[string]LocalOverride, len(local.Overrides))
	for _, o := range local.Overrides {
		localByKey[overrideKey(o.InstallPath, o.Sha512)] = o
	}

	var upload []LocalOverride
	for key, o := range localByKey {
		if _, ok := serverByKey[key]; !ok {
			upload = append(upload, o)
		}
	}
	var drop []db.SharedInstanceOverride
	for key, o := range serverByKey {
		if _, ok := localByKey[key]; !ok {
			drop = append(drop, o)
		}
	}

	return OutboundPlan{
		AddVersions:     add,
		RemoveVersions:  remove,
		UploadOverrides: upload,
		DropOverrides:   drop,
	}
}
