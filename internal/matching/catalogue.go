package matching

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

// Edit and delete windows of a message's author.
const (
	MessageEditWindow   = 30 * time.Minute
	MessageDeleteWindow = 24 * time.Hour
)

// Fields of a match pair anyone but a mutual partner may see.
var matchPairPublicFields = []string{
	objects.FieldID, FieldUserA, FieldUserB, FieldStatus, objects.FieldCreatedAt, objects.FieldUpdatedAt,
}

// NewCatalogue builds the frozen catalogue of the matching platform.
// Relationship lookups run against store.
func NewCatalogue(store docstore.Store, opts ...rls.Option) (*rls.Catalogue, error) {
	descriptors, err := Descriptors(NewResolver(store))
	if err != nil {
		return nil, err
	}

	c := rls.NewCatalogue(opts...)
	for _, d := range descriptors {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}

	return c.Freeze(), nil
}

// Descriptors returns the protected resource types.
func Descriptors(r *Resolver) ([]rls.Descriptor, error) {
	builders := []func(*Resolver) (rls.Descriptor, error){
		profileDescriptor,
		matchPairDescriptor,
		conversationDescriptor,
		messageDescriptor,
		assessmentDescriptor,
	}

	out := make([]rls.Descriptor, 0, len(builders))

	for _, build := range builders {
		d, err := build(r)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

func profileDescriptor(r *Resolver) (rls.Descriptor, error) {
	v, err := newValidator(TypeProfile, nil)
	if err != nil {
		return rls.Descriptor{}, err
	}

	return rls.Descriptor{
		Type:       TypeProfile,
		Collection: CollectionProfiles,
		OwnerField: FieldUserID,
		Scope: func(ctx context.Context, p authz.Principal) (query.Filter, error) {
			self, _ := p.SubjectID()

			partners, err := r.MutualPartners(ctx, self)
			if err != nil {
				return query.Filter{}, err
			}

			return query.InIDs(FieldUserID, append(partners, self)), nil
		},
		Policies: map[rls.Operation]rls.Policy{
			rls.OpRead: {
				rls.DenyAnonymous(),
				rls.AllowOwner(FieldUserID),
				rls.AllowWhen("mutual match with profile owner", func(ctx context.Context, p authz.Principal, s rls.Subject) (bool, error) {
					self, _ := p.SubjectID()
					owner, _ := s.Doc().IDField(FieldUserID)

					return r.HasMutualMatch(ctx, self, owner)
				}),
			},
			rls.OpCreate: {rls.AllowOwnerOrUnset(FieldUserID)},
			rls.OpUpdate: {rls.AllowOwner(FieldUserID)},
			rls.OpDelete: {rls.AllowOwner(FieldUserID)},
		},
		Redact: rls.Unless(rls.IsOwner(FieldUserID), rls.Chain(
			rls.DropFields(FieldEmail, FieldPhone, FieldIncome),
			rls.MaskFields(map[string]rls.Masker{FieldLocation: rls.CoarsenPoint(1)}),
		)),
		SoftDelete:      &rls.SoftDelete{Flag: FieldDeleted, At: FieldDeletedAt},
		Protected:       []string{FieldMatchCount},
		CreateProtected: []string{FieldMatchCount},
		Unique:          []string{FieldUserID},
		Validate:        v.Validate,
		Defaults:        objects.Document{FieldMatchCount: 0.0},
		PreCreate: []rls.Hook{
			func(_ context.Context, _ authz.Principal, doc objects.Document) error {
				if !doc.Has(FieldActive) {
					doc.Set(FieldActive, true)
				}

				return nil
			},
		},
	}, nil
}

func matchPairDescriptor(_ *Resolver) (rls.Descriptor, error) {
	v, err := newValidator(TypeMatchPair, checkMatchPair)
	if err != nil {
		return rls.Descriptor{}, err
	}

	participant := rls.AllowParticipant(FieldUserA, FieldUserB)

	return rls.Descriptor{
		Type:              TypeMatchPair,
		Collection:        CollectionMatchPairs,
		ParticipantFields: []string{FieldUserA, FieldUserB},
		Policies: map[rls.Operation]rls.Policy{
			rls.OpRead:   {rls.DenyAnonymous(), participant},
			rls.OpCreate: {rls.AllowPrivileged()},
			rls.OpUpdate: {
				rls.DenyAnonymous(),
				rls.AllowWhen("participant answers for their own side", answersOwnSide),
			},
			rls.OpDelete: {rls.AllowPrivileged()},
		},
		// Pairs are created by the matching job only; the strict create keeps
		// the decision in the policy, which allows privileged principals.
		Strict: []rls.Operation{rls.OpCreate},
		Redact: rls.Unless(rls.FieldEquals(FieldStatus, StatusMutual), rls.KeepOnly(matchPairPublicFields...)),
		Protected: []string{
			FieldUserA, FieldUserB, FieldStatus, FieldScore, FieldBreakdown, FieldAnalysis,
		},
		Validate:  v.Validate,
		Defaults:  objects.Document{FieldStatus: StatusPending},
		PreUpdate: []rls.UpdateHook{deriveStatus},
	}, nil
}

// acceptanceField returns the answer field of p's side of the pair.
func acceptanceField(p authz.Principal, pair objects.Document) (string, bool) {
	if a, ok := pair.IDField(FieldUserA); ok && p.Is(a) {
		return FieldAcceptedByA, true
	}

	if b, ok := pair.IDField(FieldUserB); ok && p.Is(b) {
		return FieldAcceptedByB, true
	}

	return "", false
}

// answersOwnSide allows a patch that only records p's own answer on a pair
// that is still open. Declined and expired pairs are final.
func answersOwnSide(_ context.Context, p authz.Principal, s rls.Subject) (bool, error) {
	side, ok := acceptanceField(p, s.Current)
	if !ok {
		return false, nil
	}

	switch s.Current.String(FieldStatus) {
	case "", StatusPending, StatusMutual:
	default:
		return false, nil
	}

	if len(s.Proposed) != 1 {
		return false, nil
	}

	_, isBool := s.Proposed[side].(bool)

	return isBool, nil
}

// deriveStatus turns the answers into the pair status: declined once either
// side refused, mutual once both accepted, pending otherwise. An explicit
// status in the patch wins; only privileged callers can send one.
func deriveStatus(_ context.Context, _ authz.Principal, current, changes objects.Document) error {
	if changes.Has(FieldStatus) || (!changes.Has(FieldAcceptedByA) && !changes.Has(FieldAcceptedByB)) {
		return nil
	}

	answer := func(field string) (accepted, answered bool) {
		v, ok := changes.Get(field)
		if !ok {
			v, ok = current.Get(field)
		}

		b, isBool := v.(bool)

		return b, ok && isBool
	}

	a, answeredA := answer(FieldAcceptedByA)
	b, answeredB := answer(FieldAcceptedByB)

	switch {
	case answeredA && !a, answeredB && !b:
		changes.Set(FieldStatus, StatusDeclined)
	case answeredA && answeredB:
		changes.Set(FieldStatus, StatusMutual)
	default:
		changes.Set(FieldStatus, StatusPending)
	}

	return nil
}

func conversationDescriptor(r *Resolver) (rls.Descriptor, error) {
	v, err := newValidator(TypeConversation, checkConversation)
	if err != nil {
		return rls.Descriptor{}, err
	}

	member := rls.AllowMember(FieldParticipantIDs)

	return rls.Descriptor{
		Type:        TypeConversation,
		Collection:  CollectionConversations,
		MemberField: FieldParticipantIDs,
		Policies: map[rls.Operation]rls.Policy{
			rls.OpRead: {rls.DenyAnonymous(), member},
			rls.OpCreate: {
				rls.DenyAnonymous(),
				rls.AllowWhen("creator matched with every participant", r.matchedWithParticipants),
			},
			rls.OpUpdate: {rls.DenyAnonymous(), member},
			rls.OpDelete: {rls.AllowPrivileged()},
		},
		Protected:       []string{FieldParticipantIDs, FieldMatchPairID},
		CreateProtected: []string{FieldMatchPairID},
		Validate:        v.Validate,
		PreCreate:       []rls.Hook{r.linkMatchPair},
	}, nil
}

// linkMatchPair points a two-person conversation at the participants' mutual
// match pair.
func (r *Resolver) linkMatchPair(ctx context.Context, _ authz.Principal, doc objects.Document) error {
	members := doc.IDs(FieldParticipantIDs)
	if doc.Has(FieldMatchPairID) || len(members) != 2 {
		return nil
	}

	id, ok, err := r.MutualPairID(ctx, members[0], members[1])
	if err != nil {
		// The link is informational; the create policy already checked the match.
		log.Warn(ctx, "link match pair failed", log.Cause(err))
		return nil
	}

	if ok {
		doc.Set(FieldMatchPairID, id)
	}

	return nil
}

// matchedWithParticipants requires the creator among the participants and a
// mutual match between the creator and each other participant.
func (r *Resolver) matchedWithParticipants(ctx context.Context, p authz.Principal, s rls.Subject) (bool, error) {
	self, ok := p.SubjectID()
	if !ok {
		return false, nil
	}

	members := s.Doc().IDs(FieldParticipantIDs)
	if !slices.Contains(members, self) {
		return false, nil
	}

	for _, other := range members {
		if other == self {
			continue
		}

		matched, err := r.HasMutualMatch(ctx, self, other)
		if err != nil || !matched {
			return false, err
		}
	}

	return true, nil
}

func messageDescriptor(r *Resolver) (rls.Descriptor, error) {
	v, err := newValidator(TypeMessage, nil)
	if err != nil {
		return rls.Descriptor{}, err
	}

	author := rls.AllowOwner(FieldSenderID)

	return rls.Descriptor{
		Type:       TypeMessage,
		Collection: CollectionMessages,
		OwnerField: FieldSenderID,
		Scope:      rls.ParentScope(FieldConversationID, r.ConversationIDs),
		Policies: map[rls.Operation]rls.Policy{
			rls.OpRead: {
				rls.DenyAnonymous(),
				rls.AllowWhen("member of the conversation", r.isMemberOfParent),
			},
			rls.OpCreate: {
				rls.DenyAnonymous(),
				rls.AllowWhen("sender is a member of the conversation", func(ctx context.Context, p authz.Principal, s rls.Subject) (bool, error) {
					if sender, set := s.Doc().IDField(FieldSenderID); set && !p.Is(sender) {
						return false, nil
					}

					return r.isMemberOfParent(ctx, p, s)
				}),
			},
			rls.OpUpdate: {rls.DenyAnonymous(), rls.Within(objects.FieldCreatedAt, MessageEditWindow, author)},
			rls.OpDelete: {
				rls.DenyAnonymous(),
				rls.HasPermission(PermissionModerateMessages),
				rls.Within(objects.FieldCreatedAt, MessageDeleteWindow, author),
			},
		},
		// Edits stay with the author, even for admins.
		Strict:     []rls.Operation{rls.OpUpdate},
		SoftDelete: &rls.SoftDelete{Flag: FieldDeleted, At: FieldDeletedAt},
		Protected:  []string{FieldConversationID},
		Validate:   v.Validate,
		PostCreate: []rls.Hook{r.touchConversation},
	}, nil
}

func (r *Resolver) isMemberOfParent(ctx context.Context, p authz.Principal, s rls.Subject) (bool, error) {
	self, _ := p.SubjectID()
	conv, _ := s.Doc().IDField(FieldConversationID)

	return r.IsConversationMember(ctx, conv, self)
}

// touchConversation moves the parent conversation's lastMessageAt to the
// message's creation time.
func (r *Resolver) touchConversation(ctx context.Context, _ authz.Principal, msg objects.Document) error {
	conv, ok := msg.IDField(FieldConversationID)
	if !ok {
		return nil
	}

	at, ok := msg.Time(objects.FieldCreatedAt)
	if !ok {
		at = time.Now()
	}

	_, err := r.db(ctx).Update(ctx, CollectionConversations, conv, objects.Document{
		FieldLastMessageAt:     at,
		objects.FieldUpdatedAt: at,
	})
	if err != nil {
		return fmt.Errorf("touch conversation %s: %w", conv, err)
	}

	log.Debug(ctx, "conversation touched", log.String("conversation_id", conv.String()))

	return nil
}

func assessmentDescriptor(_ *Resolver) (rls.Descriptor, error) {
	v, err := newValidator(TypeAssessment, nil)
	if err != nil {
		return rls.Descriptor{}, err
	}

	owner := rls.AllowOwner(FieldUserID)

	return rls.Descriptor{
		Type:       TypeAssessment,
		Collection: CollectionAssessments,
		OwnerField: FieldUserID,
		Policies: map[rls.Operation]rls.Policy{
			rls.OpRead:   {rls.DenyAnonymous(), owner},
			rls.OpCreate: {rls.AllowOwnerOrUnset(FieldUserID)},
			rls.OpUpdate: {owner},
			rls.OpDelete: {owner},
		},
		Validate: v.Validate,
	}, nil
}
