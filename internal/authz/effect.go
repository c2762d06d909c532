package authz

// combineEffects folds the matched rules into a decision outcome:
// allowed iff at least one matched rule allows and no matched rule
// denies. Zero matched rules is a denial with its own reason, so a
// caller can tell an explicit deny from an empty match set.
func combineEffects(matched []*Rule) (bool, Reason) {
	anyAllow := false
	for _, rule := range matched {
		switch rule.Effect {
		case EffectDeny:
			return false, ReasonExplicitDeny
		case EffectAllow:
			anyAllow = true
		}
	}
	if anyAllow {
		return true, ReasonAllowed
	}
	return false, ReasonNoMatch
}
