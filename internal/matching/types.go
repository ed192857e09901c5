// Package matching declares the protected resource types of the matching
// platform: profiles, match pairs, conversations, messages and assessments.
package matching

import "github.com/charm-corp/ai-value-matching-sub001/internal/rls"

const (
	TypeProfile      rls.ResourceType = "Profile"
	TypeMatchPair    rls.ResourceType = "MatchPair"
	TypeConversation rls.ResourceType = "Conversation"
	TypeMessage      rls.ResourceType = "Message"
	TypeAssessment   rls.ResourceType = "Assessment"
)

const (
	CollectionProfiles      = "profiles"
	CollectionMatchPairs    = "match_pairs"
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"
	CollectionAssessments   = "assessments"
)

// Document fields the policies and scopes depend on.
const (
	FieldUserID         = "userId"
	FieldUserA          = "userA"
	FieldUserB          = "userB"
	FieldStatus         = "status"
	FieldScore          = "score"
	FieldBreakdown      = "breakdown"
	FieldAnalysis       = "analysis"
	FieldAcceptedByA    = "acceptedByA"
	FieldAcceptedByB    = "acceptedByB"
	FieldParticipantIDs = "participantIds"
	FieldMatchPairID    = "matchPairId"
	FieldLastMessageAt  = "lastMessageAt"
	FieldConversationID = "conversationId"
	FieldSenderID       = "senderId"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldIncome         = "income"
	FieldLocation       = "location"
	FieldMatchCount     = "matchCount"
	FieldValues         = "values"
	FieldActive         = "active"
	FieldDeleted        = "deleted"
	FieldDeletedAt      = "deletedAt"
)

// MatchPair statuses.
const (
	StatusPending  = "pending"
	StatusMutual   = "mutual"
	StatusDeclined = "declined"
	StatusExpired  = "expired"
)

// PermissionModerateMessages lets moderators remove any message.
const PermissionModerateMessages = "messages:moderate"
