// Package sharedinstance implements spec §4.8: converting a client
// profile into a shared instance and syncing it in either direction.
package sharedinstance

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/client/filehost"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// Store is the ledger slice the service reads and writes through.
type Store interface {
	db.SharedInstanceQuerier
	db.ProfileQuerier
}

type Service struct {
	store Store
	files *filehost.Client
}

func NewService(store Store, files *filehost.Client) *Service {
	return &Service{store: store, files: files}
}

// CreateFromLocalProfile converts a client profile into a new shared
// instance, uploading every override's bytes to the file host first.
// It refuses a profile already linked to a shared instance or modpack.
func (s *Service) CreateFromLocalProfile(ctx context.Context, ownerUserID int64, profileID string, local LocalProfile) (db.SharedInstance, error) {
	link, err := s.store.GetProfileLink(ctx, profileID)
	if err != nil {
		return db.SharedInstance{}, err
	}
	if link != nil && (link.SharedInstanceID != nil || link.ModpackID != nil) {
		return db.SharedInstance{}, apperr.Conflictf("profile is already linked to a shared instance or modpack")
	}

	overrides := make([]db.SharedInstanceOverride, 0, len(local.Overrides))
	for _, o := range local.Overrides {
		url, err := s.files.Upload(ctx, o.Sha512, o.Data)
		if err != nil {
			return db.SharedInstance{}, err
		}
		overrides = append(overrides, db.SharedInstanceOverride{
			InstallPath: o.InstallPath,
			Sha1:        o.Sha1,
			Sha512:      o.Sha512,
			FileURL:     url,
		})
	}

	versions := make([]db.SharedInstanceVersion, 0, len(local.ProjectVersions))
	for _, v := range local.ProjectVersions {
		versions = append(versions, db.SharedInstanceVersion{VersionID: v})
	}

	created, err := s.store.InsertSharedInstance(ctx, db.SharedInstance{
		OwnerUserID:   ownerUserID,
		Name:          local.Name,
		Loader:        local.Loader,
		LoaderVersion: local.LoaderVersion,
		GameVersion:   local.GameVersion,
		Icon:          local.Icon,
		Versions:      versions,
		Overrides:     overrides,
	})
	if err != nil {
		return db.SharedInstance{}, err
	}
	if err := s.store.LinkProfileToSharedInstance(ctx, profileID, created.ID); err != nil {
		return db.SharedInstance{}, err
	}
	return created, nil
}

// InboundSync computes what a client pulling server state must apply
// locally. Callers readable by the instance (owner or a shared member)
// may call this; it never mutates server state.
func (s *Service) InboundSync(ctx context.Context, sharedInstanceID, requesterUserID int64, local LocalProfile) (SyncPlan, error) {
	instance, err := s.store.GetSharedInstance(ctx, sharedInstanceID)
	if err != nil {
		return SyncPlan{}, err
	}
	if !canRead(instance, requesterUserID) {
		return SyncPlan{}, apperr.Unauthorizedf("not authorized to read this shared instance")
	}
	return inboundPlan(local, instance), nil
}

// OutboundSync pushes the owner's local state to the server, uploading
// any new overrides and replacing the instance's recorded version and
// override sets with the local ones.
func (s *Service) OutboundSync(ctx context.Context, sharedInstanceID, requesterUserID int64, local LocalProfile) (db.SharedInstance, error) {
	instance, err := s.store.GetSharedInstance(ctx, sharedInstanceID)
	if err != nil {
		return db.SharedInstance{}, err
	}
	if instance.OwnerUserID != requesterUserID {
		return db.SharedInstance{}, apperr.Unauthorizedf("only the owner may push to a shared instance")
	}

	plan := outboundPlan(local, instance)

	uploaded := make(map[string]string, len(plan.UploadOverrides))
	for _, o := range plan.UploadOverrides {
		url, err := s.files.Upload(ctx, o.Sha512, o.Data)
		if err != nil {
			return db.SharedInstance{}, err
		}
		uploaded[overrideKey(o.InstallPath, o.Sha512)] = url
	}

	finalOverrides := make([]db.SharedInstanceOverride, 0, len(local.Overrides))
	for _, o := range local.Overrides {
		key := overrideKey(o.InstallPath, o.Sha512)
		url, isNew := uploaded[key]
		if !isNew {
			url = existingFileURL(instance, o.InstallPath, o.Sha512)
		}
		finalOverrides = append(finalOverrides, db.SharedInstanceOverride{
			InstallPath: o.InstallPath,
			Sha1:        o.Sha1,
			Sha512:      o.Sha512,
			FileURL:     url,
		})
	}

	finalVersions := make([]db.SharedInstanceVersion, 0, len(local.ProjectVersions))
	for _, v := range local.ProjectVersions {
		finalVersions = append(finalVersions, db.SharedInstanceVersion{VersionID: v})
	}

	instance.Name = local.Name
	instance.Loader = local.Loader
	instance.LoaderVersion = local.LoaderVersion
	instance.GameVersion = local.GameVersion
	instance.Icon = local.Icon
	instance.Versions = finalVersions
	instance.Overrides = finalOverrides

	if err := s.store.UpdateSharedInstance(ctx, instance); err != nil {
		return db.SharedInstance{}, err
	}
	return instance, nil
}

func canRead(instance db.SharedInstance, userID int64) bool {
	if instance.OwnerUserID == userID {
		return true
	}
	for _, id := range instance.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

func existingFileURL(instance db.SharedInstance, installPath, sha512 string) string {
	for _, o := range instance.Overrides {
		if o.InstallPath == installPath && o.Sha512 == sha512 {
			return o.FileURL
		}
	}
	return ""
}
