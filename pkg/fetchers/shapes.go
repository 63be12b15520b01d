package fetchers

import (
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
)

func object(value interface{}) (map[string]interface{}, bool) {
	fields, ok := value.(map[string]interface{})
	return fields, ok
}

func hasStrings(fields map[string]interface{}, names ...string) bool {
	for _, name := range names {
		if _, ok := fields[name].(string); !ok {
			return false
		}
	}
	return true
}

func IsCurrentUser(value interface{}) bool {
	fields, ok := object(value)
	if !ok || !hasStrings(fields, "id", "email", "role", "group", "orgId", "createdAt") {
		return false
	}
	if _, ok := fields["balance"].(float64); !ok {
		return false
	}
	lastLogin, present := fields["lastLoginAt"]
	if !present {
		return false
	}
	if lastLogin != nil {
		if _, ok := lastLogin.(string); !ok {
			return false
		}
	}
	return true
}

func IsAuthMethods(value interface{}) bool {
	fields, ok := object(value)
	if !ok {
		return false
	}
	if _, ok := fields["passwordSet"].(bool); !ok {
		return false
	}
	methods, ok := fields["oauth"].([]interface{})
	if !ok {
		return false
	}
	for _, item := range methods {
		row, ok := object(item)
		if !ok || !hasStrings(row, "id", "provider", "email", "createdAt") {
			return false
		}
	}
	return true
}

func NewCurrentUserFetcher(backend BackendPort, tags TagCachePort) *Fetcher[common.CurrentUser] {
	return NewFetcher[common.CurrentUser](cache.TagCurrentUser, "/auth/me", IsCurrentUser, backend, tags)
}

func NewAuthMethodsFetcher(backend BackendPort, tags TagCachePort) *Fetcher[common.AuthMethods] {
	return NewFetcher[common.AuthMethods](cache.TagAuthMethods, "/auth/methods", IsAuthMethods, backend, tags)
}
