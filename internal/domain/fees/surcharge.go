package fees

// CardType is the scheme-reported funding type of a card.
type CardType string

const (
	CardTypeCredit        CardType = "CREDIT"
	CardTypeDebit         CardType = "DEBIT"
	CardTypeCreditOrDebit CardType = "CREDIT_OR_DEBIT"
)

// PrepaidStatus is the scheme-reported prepaid classification of a card.
type PrepaidStatus string

const (
	PrepaidYes     PrepaidStatus = "PREPAID"
	PrepaidNo      PrepaidStatus = "NOT_PREPAID"
	PrepaidUnknown PrepaidStatus = "UNKNOWN"
)

// SurchargeConfig holds the per-gateway-account corporate surcharge amounts,
// in minor units, for each card-type/prepaid combination. An amount of zero
// means not configured, not a surcharge of zero.
type SurchargeConfig struct {
	CorporateCredit        int64
	CorporateDebit         int64
	CorporatePrepaidCredit int64
	CorporatePrepaidDebit  int64
}

// CardInfo is what surcharge evaluation needs to know about the card.
// Prepaid may be nil when the card service gave no classification.
type CardInfo struct {
	Type      CardType
	Corporate bool
	Prepaid   *PrepaidStatus
}

// CorporateSurcharge returns the surcharge amount to add for the card, or
// (0, false) when none applies. The rules fail closed: an ambiguous card
// type, a non-corporate card, an unknown or missing prepaid status, or an
// unconfigured amount all yield no surcharge. This runs on the hot
// authorisation path and must never block payment completion.
func CorporateSurcharge(cfg SurchargeConfig, card CardInfo) (int64, bool) {
	if !card.Corporate {
		return 0, false
	}
	if card.Type == CardTypeCreditOrDebit {
		return 0, false
	}
	if card.Prepaid == nil || *card.Prepaid == PrepaidUnknown {
		return 0, false
	}

	var amount int64
	switch {
	case card.Type == CardTypeCredit && *card.Prepaid == PrepaidNo:
		amount = cfg.CorporateCredit
	case card.Type == CardTypeDebit && *card.Prepaid == PrepaidNo:
		amount = cfg.CorporateDebit
	case card.Type == CardTypeCredit && *card.Prepaid == PrepaidYes:
		amount = cfg.CorporatePrepaidCredit
	case card.Type == CardTypeDebit && *card.Prepaid == PrepaidYes:
		amount = cfg.CorporatePrepaidDebit
	}

	if amount <= 0 {
		return 0, false
	}
	return amount, true
}
