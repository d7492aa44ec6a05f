package domain

// BenefitSnapshot is one effective-benefit value per dimension. Nil on a
// pointer dimension means unlimited; it is never used for "unset".
type BenefitSnapshot struct {
	// LeadsLimit is the lead ceiling for the period's reset window: the
	// monthly allocation under monthly billing, the annual pool under
	// yearly billing.
	LeadsLimit *int `gorm:"column:leads_limit" json:"leads_limit"`

	AccessDelayHours   int              `gorm:"column:access_delay_hours;not null" json:"access_delay_hours"`
	RadiusKm           *float64         `gorm:"column:radius_km" json:"radius_km"`
	MaxProperties      *int             `gorm:"column:max_properties" json:"max_properties"`
	PlatformFeePercent float64          `gorm:"column:platform_fee_percent;not null" json:"platform_fee_percent"`
	PropertyType       PropertyTypeTier `gorm:"column:property_type;type:text;not null" json:"property_type"`
	OffMarketAccess    bool             `gorm:"column:off_market_access;not null" json:"off_market_access"`
	FeaturedListing    bool             `gorm:"column:featured_listing;not null" json:"featured_listing"`
	PrioritySupport    bool             `gorm:"column:priority_support;not null" json:"priority_support"`
}

// UnlimitedLeads reports whether the snapshot has no lead ceiling.
func (s BenefitSnapshot) UnlimitedLeads() bool { return s.LeadsLimit == nil }

// Merge combines two snapshots dimension by dimension so that no benefit
// regresses: max for radius and max properties (nil wins), min for access
// delay and platform fee, OR for feature flags, commercial wins for the
// property-type tier. Lead accumulation is billing-aware and handled by the
// upgrade calculator, not here.
func (s BenefitSnapshot) Merge(next BenefitSnapshot) BenefitSnapshot {
	merged := BenefitSnapshot{
		AccessDelayHours:   minInt(s.AccessDelayHours, next.AccessDelayHours),
		RadiusKm:           maxFloatPtr(s.RadiusKm, next.RadiusKm),
		MaxProperties:      maxIntPtr(s.MaxProperties, next.MaxProperties),
		PlatformFeePercent: minFloat(s.PlatformFeePercent, next.PlatformFeePercent),
		PropertyType:       mergePropertyType(s.PropertyType, next.PropertyType),
		OffMarketAccess:    s.OffMarketAccess || next.OffMarketAccess,
		FeaturedListing:    s.FeaturedListing || next.FeaturedListing,
		PrioritySupport:    s.PrioritySupport || next.PrioritySupport,
	}
	merged.LeadsLimit = next.LeadsLimit
	return merged
}

func mergePropertyType(a, b PropertyTypeTier) PropertyTypeTier {
	if a == PropertyTypeCommercial || b == PropertyTypeCommercial {
		return PropertyTypeCommercial
	}
	return PropertyTypeDomestic
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// maxIntPtr treats nil as unlimited, which beats any finite value.
func maxIntPtr(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	if *a > *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}

func maxFloatPtr(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	if *a > *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}
