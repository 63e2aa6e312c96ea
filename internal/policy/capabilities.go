package policy

import "github.com/safar/gallery-store/internal/models"

type Capability string

const (
	ManageCatalog  Capability = "manage_catalog"
	SubmitArtwork  Capability = "submit_artwork"
	Curate         Capability = "curate"
	ManageOrders   Capability = "manage_orders"
	ManageAccounts Capability = "manage_accounts"
	ReadMessages   Capability = "read_messages"
)

var roleCapabilities = map[string][]Capability{
	models.RoleAdmin: {
		ManageCatalog, SubmitArtwork, Curate, ManageOrders, ManageAccounts, ReadMessages,
	},
	models.RoleArtist:  {SubmitArtwork},
	models.RoleCurator: {Curate},
	models.RoleUser:    {},
}

// CapabilitiesFor returns what a role may do. Unknown roles get nothing.
func CapabilitiesFor(role string) []Capability {
	caps, ok := roleCapabilities[role]
	if !ok {
		return []Capability{}
	}
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

func Can(role string, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}

func ValidAccountStatus(status string) bool {
	switch status {
	case models.AccountStatusActive, models.AccountStatusInactive, models.AccountStatusSuspended:
		return true
	}
	return false
}

// CanEditArtwork allows catalog managers, and artists on their own work.
func CanEditArtwork(role string, accountID int64, email string, artwork *models.Artwork) bool {
	if Can(role, ManageCatalog) {
		return true
	}
	if role != models.RoleArtist || artwork == nil {
		return false
	}
	if artwork.ArtistAccountID != nil && *artwork.ArtistAccountID == accountID {
		return true
	}
	return email != "" && artwork.ArtistEmail == email
}
