package cache

// Tag names a class of cached read results that are invalidated together.
type Tag string

const (
	TagCurrentUser       Tag = "auth:me"
	TagAuthMethods       Tag = "auth:methods"
	TagKeysUser          Tag = "keys:user"
	TagModelsUser        Tag = "models:user"
	TagModelsAdminConfig Tag = "models:admin-config"
	TagAdminOverview     Tag = "admin:overview"
	TagAdminUsers        Tag = "admin:users"
	TagAdminChannels     Tag = "admin:channels"
	TagAdminSettings     Tag = "admin:settings"
	TagBillingLedger     Tag = "billing:ledger"
	TagAnnouncements     Tag = "announcements"
	TagInviteSummary     Tag = "invite:summary"
)

// AllTags is the closed registry. Anything not listed here is not a tag.
var AllTags = []Tag{
	TagCurrentUser,
	TagAuthMethods,
	TagKeysUser,
	TagModelsUser,
	TagModelsAdminConfig,
	TagAdminOverview,
	TagAdminUsers,
	TagAdminChannels,
	TagAdminSettings,
	TagBillingLedger,
	TagAnnouncements,
	TagInviteSummary,
}

func (tag Tag) Valid() bool {
	for _, known := range AllTags {
		if tag == known {
			return true
		}
	}
	return false
}
