package derive

// Outcome 标记一次 Resolve 的结论，写入日志与指标标签。
type Outcome string

const (
	OutcomeDisabled      Outcome = "disabled"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomeMissingSource Outcome = "missing_source"
	OutcomeEmptySource   Outcome = "empty_source"
	OutcomeUnsupported   Outcome = "unsupported"
	OutcomeHit           Outcome = "hit"
	OutcomeConverted     Outcome = "converted"
	OutcomeOversized     Outcome = "oversized"
	OutcomeFailed        Outcome = "failed"
	OutcomeKnownBad      Outcome = "known_bad"
	OutcomeCanceled      Outcome = "canceled"
)

// Usable 报告该结论是否产出了可直接引用的派生图。
func (o Outcome) Usable() bool {
	return o == OutcomeHit || o == OutcomeConverted
}

// negativeOutcome 报告该结论是否值得写入负结果缓存。
func (o Outcome) negative() bool {
	return o == OutcomeOversized || o == OutcomeFailed
}
