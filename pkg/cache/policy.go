package cache

// Route identifies a mutating operation whose success invalidates tags.
type Route int

const (
	RouteNone Route = iota
	RouteLogin
	RouteRegister
	RouteOAuthLogin
	RouteLogout
	RouteEmailChangeConfirm
	RoutePasswordSet
	RouteOAuthUnlink
	RouteKeyCreate
	RouteKeyUpdate
	RouteKeyRevoke
	RouteChannelCreate
	RouteChannelUpdate
	RouteChannelDelete
	RouteModelUpdate
	RouteModelRefresh
	RouteAdminUserUpdate
	RouteAdminUserDelete
	RouteAnnouncementCreate
	RouteAnnouncementUpdate
	RouteAnnouncementDelete
	RouteSettingsUpdate
	RouteTopupCompleted

	routeCount
)

var routeNames = [routeCount]string{
	RouteNone:               "none",
	RouteLogin:              "login",
	RouteRegister:           "register",
	RouteOAuthLogin:         "oauth-login",
	RouteLogout:             "logout",
	RouteEmailChangeConfirm: "email-change-confirm",
	RoutePasswordSet:        "password-set",
	RouteOAuthUnlink:        "oauth-unlink",
	RouteKeyCreate:          "key-create",
	RouteKeyUpdate:          "key-update",
	RouteKeyRevoke:          "key-revoke",
	RouteChannelCreate:      "channel-create",
	RouteChannelUpdate:      "channel-update",
	RouteChannelDelete:      "channel-delete",
	RouteModelUpdate:        "model-update",
	RouteModelRefresh:       "model-refresh",
	RouteAdminUserUpdate:    "admin-user-update",
	RouteAdminUserDelete:    "admin-user-delete",
	RouteAnnouncementCreate: "announcement-create",
	RouteAnnouncementUpdate: "announcement-update",
	RouteAnnouncementDelete: "announcement-delete",
	RouteSettingsUpdate:     "settings-update",
	RouteTopupCompleted:     "topup-completed",
}

func (route Route) String() string {
	if route < 0 || route >= routeCount {
		return "unknown"
	}
	return routeNames[route]
}

var (
	loginTags   = []Tag{TagCurrentUser, TagAdminUsers, TagAdminOverview}
	channelTags = []Tag{TagAdminChannels, TagModelsAdminConfig, TagModelsUser}
	modelTags   = []Tag{TagModelsAdminConfig, TagModelsUser}
	userTags    = []Tag{TagAdminUsers, TagBillingLedger}
)

// policy is indexed by Route; the array length makes a missing route a
// compile error and the policy test checks no mutating route is empty.
var policy = [routeCount][]Tag{
	RouteNone:               nil,
	RouteLogin:              loginTags,
	RouteRegister:           loginTags,
	RouteOAuthLogin:         loginTags,
	RouteLogout:             {TagCurrentUser},
	RouteEmailChangeConfirm: {TagCurrentUser},
	RoutePasswordSet:        {TagAuthMethods, TagCurrentUser},
	RouteOAuthUnlink:        {TagAuthMethods},
	RouteKeyCreate:          {TagKeysUser},
	RouteKeyUpdate:          {TagKeysUser},
	RouteKeyRevoke:          {TagKeysUser},
	RouteChannelCreate:      channelTags,
	RouteChannelUpdate:      channelTags,
	RouteChannelDelete:      channelTags,
	RouteModelUpdate:        modelTags,
	RouteModelRefresh:       {TagModelsAdminConfig, TagModelsUser, TagAdminOverview},
	RouteAdminUserUpdate:    userTags,
	RouteAdminUserDelete:    userTags,
	RouteAnnouncementCreate: {TagAnnouncements},
	RouteAnnouncementUpdate: {TagAnnouncements},
	RouteAnnouncementDelete: {TagAnnouncements},
	RouteSettingsUpdate:     {TagAdminSettings},
	RouteTopupCompleted:     {TagCurrentUser, TagBillingLedger},
}

// TagsFor returns a copy of the tags a successful route invalidates.
func TagsFor(route Route) []Tag {
	if route < 0 || route >= routeCount {
		return nil
	}
	tags := policy[route]
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}
