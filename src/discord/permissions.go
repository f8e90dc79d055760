package discord

import "github.com/bwmarrin/discordgo"

// PermissionSource is the part of a session that resolves channel permissions.
type PermissionSource interface {
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// IsAdministrator reports whether userID holds the Administrator permission in
// the channel's guild. Lookup failures count as no.
func IsAdministrator(s PermissionSource, channelID, userID string) bool {
	if channelID == "" || userID == "" {
		return false
	}
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}
