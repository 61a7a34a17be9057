package discord

import (
	"github.com/bwmarrin/discordgo"
)

// interactionIsAdmin reads the resolved permissions Discord sends with
// every guild interaction.
func interactionIsAdmin(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// memberIsAdmin reports whether a message author owns the guild or holds a
// role with the Administrator permission. Only cached state is consulted.
func memberIsAdmin(state *discordgo.State, guildID string, member *discordgo.Member, userID string) bool {
	if state == nil || guildID == "" {
		return false
	}
	guild, err := state.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	if userID != "" && userID == guild.OwnerID {
		return true
	}
	if member == nil {
		return false
	}
	for _, roleID := range member.Roles {
		if role, _ := state.Role(guildID, roleID); role != nil && role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}
