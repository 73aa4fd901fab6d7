// Package automation decides which rules fire for an inbound Instagram
// event and runs their actions against the Graph API.
package automation

import (
	"sort"

	"sociohiro-backend/models"
)

var compatibleActions = map[models.TriggerType][]models.ActionType{
	models.TriggerComment: {models.ActionReplyComment, models.ActionLikeComment, models.ActionSendDM},
	models.TriggerDM:      {models.ActionSendDM},
	models.TriggerMention: {models.ActionSendDM, models.ActionSendStoryReply},
	models.TriggerLike:    {models.ActionSendDM},
	models.TriggerFollow:  {models.ActionSendDM, models.ActionFollowUser},
	models.TriggerHashtag: {models.ActionSendDM},
}

// ValidTrigger reports whether t is a known trigger.
func ValidTrigger(t models.TriggerType) bool {
	_, ok := compatibleActions[t]
	return ok
}

// ValidAction reports whether a is a known action.
func ValidAction(a models.ActionType) bool {
	switch a {
	case models.ActionSendDM, models.ActionLikeComment, models.ActionReplyComment,
		models.ActionFollowUser, models.ActionSendStoryReply:
		return true
	}
	return false
}

// IsCompatible reports whether action may be configured for trigger.
func IsCompatible(trigger models.TriggerType, action models.ActionType) bool {
	for _, a := range compatibleActions[trigger] {
		if a == action {
			return true
		}
	}
	return false
}

// CompatibleActions returns the actions allowed for trigger.
func CompatibleActions(trigger models.TriggerType) []models.ActionType {
	out := make([]models.ActionType, len(compatibleActions[trigger]))
	copy(out, compatibleActions[trigger])
	return out
}

// TriggersFor returns the triggers that accept action, sorted.
func TriggersFor(action models.ActionType) []models.TriggerType {
	var out []models.TriggerType
	for trigger, actions := range compatibleActions {
		for _, a := range actions {
			if a == action {
				out = append(out, trigger)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CompatibilityMatrix returns the full trigger to actions table.
func CompatibilityMatrix() map[models.TriggerType][]models.ActionType {
	out := make(map[models.TriggerType][]models.ActionType, len(compatibleActions))
	for trigger := range compatibleActions {
		out[trigger] = CompatibleActions(trigger)
	}
	return out
}

// needsMessage lists actions that send responseMessage.
func needsMessage(a models.ActionType) bool {
	switch a {
	case models.ActionSendDM, models.ActionReplyComment, models.ActionSendStoryReply:
		return true
	}
	return false
}
