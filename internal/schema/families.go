package schema

// DefaultRegistry returns the built-in report families. Search-ad and
// display sources report fixed daily snapshots (point mode); GA4 exports a
// trailing window whose numbers are revised for several days, so its span
// is replaced on every ingest (range mode).
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Family{
			Name: "NAVER_AD",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":          TypeDate,
				"campaignName":  TypeString,
				"campaignID":    TypeString,
				"adGroupName":   TypeString,
				"adGroupID":     TypeString,
				"adKeyword":     TypeString,
				"adKeywordID":   TypeString,
				"adID":          TypeString,
				"pcMobileType":  TypeString,
				"impressions":   TypeInteger,
				"clicks":        TypeInteger,
				"cost":          TypeFloat,
				"sumofADrank":   TypeFloat,
			},
		},
		&Family{
			Name: "NAVER_AD_CONVERSION",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":              TypeDate,
				"campaignName":      TypeString,
				"campaignID":        TypeString,
				"adGroupName":       TypeString,
				"adGroupID":         TypeString,
				"adKeyword":         TypeString,
				"adKeywordID":       TypeString,
				"adID":              TypeString,
				"pcMobileType":      TypeString,
				"conversionType":    TypeString,
				"conversionCount":   TypeFloat,
				"salesByConversion": TypeInteger,
			},
		},
		&Family{
			Name: "NAVER_SHOPPINGKEYWORD_DETAIL",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":            TypeDate,
				"campaignID":      TypeString,
				"campaignName":    TypeString,
				"adGroupID":       TypeString,
				"adGroupName":     TypeString,
				"searchKeyword":   TypeString,
				"adID":            TypeString,
				"productName":     TypeString,
				"productID":       TypeString,
				"productIDofMall": TypeString,
				"pcMobileType":    TypeString,
				"impressions":     TypeInteger,
				"clicks":          TypeInteger,
				"cost":            TypeFloat,
				"sumofADrank":     TypeFloat,
			},
		},
		&Family{
			Name: "NAVER_SHOPPINGKEYWORD_CONVERSION_DETAIL",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":              TypeDate,
				"campaignID":        TypeString,
				"campaignName":      TypeString,
				"adGroupID":         TypeString,
				"adGroupName":       TypeString,
				"searchKeyword":     TypeString,
				"adID":              TypeString,
				"productName":       TypeString,
				"productID":         TypeString,
				"productIDofMall":   TypeString,
				"pcMobileType":      TypeString,
				"conversionType":    TypeString,
				"conversionCount":   TypeFloat,
				"salesByConversion": TypeInteger,
			},
		},
		&Family{
			Name: "KAKAO_SEARCH_AD",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":         TypeDate,
				"campaignID":   TypeString,
				"campaignName": TypeString,
				"groupID":      TypeString,
				"groupName":    TypeString,
				"keywordID":    TypeString,
				"keywordName":  TypeString,
				"imp":          TypeInteger,
				"click":        TypeInteger,
				"cost":         TypeFloat,
				"rank":         TypeFloat,
			},
		},
		&Family{
			Name: "KAKAO_MOMENT_AD",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":         TypeDate,
				"campaignID":   TypeString,
				"campaignName": TypeString,
				"groupID":      TypeString,
				"groupName":    TypeString,
				"creativeID":   TypeString,
				"creativeName": TypeString,
				"imp":          TypeInteger,
				"click":        TypeInteger,
				"cost":         TypeFloat,
			},
		},
		&Family{
			Name: "GOOGLE_ADS",
			Mode: ModePoint,
			Hints: map[string]Type{
				"customer_id":                     TypeString,
				"campaign_id":                     TypeString,
				"ad_group_id":                     TypeString,
				"customer_descriptive_name":       TypeString,
				"campaign_name":                   TypeString,
				"ad_group_name":                   TypeString,
				"ad_group_criterion_keyword_text": TypeString,
				"segments_date":                   TypeDate,
				"segments_month":                  TypeString,
				"segments_quarter":                TypeString,
				"campaign_status":                 TypeString,
				"ad_group_status":                 TypeString,
				"ad_group_criterion_status":       TypeString,
				"metrics_impressions":             TypeInteger,
				"metrics_clicks":                  TypeInteger,
				"metrics_cost_micros":             TypeFloat,
			},
			DateField: "segments_date",
		},
		&Family{
			// GA4 tables carry a per-tenant suffix (GA4_<property>), so the
			// family is matched on prefix.
			Name:   "GA4",
			Prefix: "GA4",
			Mode:   ModeRange,
			Hints: map[string]Type{
				"date":                   TypeDate,
				"source":                 TypeString,
				"medium":                 TypeString,
				"campaign":               TypeString,
				"sessionManualAdContent": TypeString,
				"sessions":               TypeInteger,
				"users":                  TypeInteger,
				"page_views":             TypeInteger,
				"bounce_rate":            TypeFloat,
				"avg_session_duration":   TypeFloat,
				"conversions":            TypeInteger,
				"conversion_rate":        TypeFloat,
				"eventCount":             TypeInteger,
				"keyEvents":              TypeFloat,
				"eventValue":             TypeFloat,
				"activeUsers":            TypeInteger,
			},
		},
		&Family{
			Name: "META_ADS",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":          TypeDate,
				"campaign_name": TypeString,
				"adset_name":    TypeString,
				"ad_name":       TypeString,
				"impressions":   TypeInteger,
				"clicks":        TypeInteger,
				"spend":         TypeFloat,
				"video_views":   TypeInteger,
			},
		},
		&Family{
			Name: "TIKTOK_ADS",
			Mode: ModePoint,
			Hints: map[string]Type{
				"date":               TypeDatetime,
				"campaign_id":        TypeString,
				"campaign_name":      TypeString,
				"adgroup_id":         TypeString,
				"adgroup_name":       TypeString,
				"ad_id":              TypeString,
				"ad_name":            TypeString,
				"impressions":        TypeInteger,
				"clicks":             TypeInteger,
				"spend":              TypeInteger,
				"video_play_actions": TypeInteger,
			},
		},
	)
}
