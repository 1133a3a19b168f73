// Package registry is the static catalog of supported cloud storage
// providers. It is pure lookup: no mutable state, no network.
package registry

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/cvdeck/cvdeck/internal/model"
)

// Capability is a provider feature the save/list paths may depend on.
type Capability string

const (
	CapRead    Capability = "read"
	CapWrite   Capability = "write"
	CapDelete  Capability = "delete"
	CapFolders Capability = "folders"
)

// Descriptor describes one supported provider: display metadata, its
// capability set, its OAuth endpoint, and the backend route prefix every
// provider-specific call is built from.
type Descriptor struct {
	ID           model.ProviderID
	DisplayName  string
	Capabilities map[Capability]bool
	OAuth        oauth2.Endpoint
	Scopes       []string
	// RoutePrefix is the {provider} segment in the backend REST surface,
	// e.g. "google-drive" for POST /api/google-drive/save.
	RoutePrefix string
}

// Has reports whether the provider supports the capability.
func (d Descriptor) Has(c Capability) bool {
	return d.Capabilities[c]
}

var catalog = map[model.ProviderID]Descriptor{
	model.ProviderGoogleDrive: {
		ID:          model.ProviderGoogleDrive,
		DisplayName: "Google Drive",
		Capabilities: map[Capability]bool{
			CapRead: true, CapWrite: true, CapDelete: true, CapFolders: true,
		},
		OAuth:       google.Endpoint,
		Scopes:      []string{"https://www.googleapis.com/auth/drive.file"},
		RoutePrefix: "google-drive",
	},
	model.ProviderOneDrive: {
		ID:          model.ProviderOneDrive,
		DisplayName: "OneDrive",
		Capabilities: map[Capability]bool{
			CapRead: true, CapWrite: true, CapDelete: true, CapFolders: true,
		},
		OAuth: oauth2.Endpoint{
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		},
		Scopes:      []string{"Files.ReadWrite.AppFolder", "offline_access"},
		RoutePrefix: "onedrive",
	},
	model.ProviderDropbox: {
		ID:          model.ProviderDropbox,
		DisplayName: "Dropbox",
		Capabilities: map[Capability]bool{
			CapRead: true, CapWrite: true, CapDelete: true, CapFolders: true,
		},
		OAuth: oauth2.Endpoint{
			AuthURL:  "https://www.dropbox.com/oauth2/authorize",
			TokenURL: "https://api.dropboxapi.com/oauth2/token",
		},
		Scopes:      []string{"files.content.write", "files.content.read"},
		RoutePrefix: "dropbox",
	},
	model.ProviderBox: {
		ID:          model.ProviderBox,
		DisplayName: "Box",
		Capabilities: map[Capability]bool{
			// Box integration uses a flat app folder; no folder management.
			CapRead: true, CapWrite: true, CapDelete: true,
		},
		OAuth: oauth2.Endpoint{
			AuthURL:  "https://account.box.com/api/oauth2/authorize",
			TokenURL: "https://api.box.com/oauth2/token",
		},
		Scopes:      []string{"root_readwrite"},
		RoutePrefix: "box",
	},
}

// order keeps Supported() deterministic for UI listings.
var order = []model.ProviderID{
	model.ProviderGoogleDrive,
	model.ProviderOneDrive,
	model.ProviderDropbox,
	model.ProviderBox,
}

// Describe resolves a provider id to its descriptor.
func Describe(id model.ProviderID) (Descriptor, error) {
	d, ok := catalog[id]
	if !ok {
		return Descriptor{}, &model.UnsupportedProviderError{ID: id}
	}
	return d, nil
}

// Supported returns all provider descriptors in display order.
func Supported() []Descriptor {
	out := make([]Descriptor, 0, len(order))
	for _, id := range order {
		out = append(out, catalog[id])
	}
	return out
}
