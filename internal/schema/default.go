package schema

// Group names used by Default.
const (
	GroupFiveHour       = "five_hour"
	GroupSevenDay       = "seven_day"
	GroupSevenDayOpus   = "seven_day_opus"
	GroupSevenDaySonnet = "seven_day_sonnet"
	GroupExtraUsage     = "extra_usage"
)

// PerModelGroups maps seven-day per-model groups to the model name they report.
var PerModelGroups = map[string]string{
	GroupSevenDayOpus:   "opus",
	GroupSevenDaySonnet: "sonnet",
}

func window(prefix string) Group {
	return Group{
		"utilization": {Path: prefix + ".utilization"},
		"resets_at":   {Path: prefix + ".resets_at"},
	}
}

// Default describes the usage endpoint payload.
var Default = Schema{
	Version: "2025-10",
	Groups: map[string]Group{
		GroupFiveHour:       window("five_hour"),
		GroupSevenDay:       window("seven_day"),
		GroupSevenDayOpus:   window("seven_day_opus"),
		GroupSevenDaySonnet: window("seven_day_sonnet"),
		GroupExtraUsage:     window("extra_usage"),
	},
}

// Overage describes the overage spend limit payload. Amounts are in minor
// currency units.
var Overage = Schema{
	Version: "2025-10",
	Groups: map[string]Group{
		"limit": {
			"enabled":        {Path: "isEnabled", Default: false},
			"used":           {Path: "usedCredits", Default: 0.0},
			"monthly_limit":  {Path: "monthlyCreditLimit", Default: 0.0},
			"currency":       {Path: "currency", Default: "USD"},
			"out_of_credits": {Path: "outOfCredits"},
		},
	},
}

// Credits describes the prepaid credit balance payload.
var Credits = Schema{
	Version: "2025-10",
	Groups: map[string]Group{
		"balance": {
			"amount":   {Path: "amount"},
			"currency": {Path: "currency", Default: "USD"},
		},
	},
}
