package analysis

// Report is the full balance check of one randomization version.
type Report struct {
	Version       string          `json:"version"`
	Events        int             `json:"events"`
	Visitors      []Visitor       `json:"visitors"`
	UsersPerGroup []GroupCount    `json:"users_per_group"`
	Popups        []PopupCount    `json:"popups"`
	Newsletter    Newsletter      `json:"newsletter"`
	Overview      Overview        `json:"overview"`
	Balance       []BalanceMetric `json:"balance"`
	Demographics  []Dimension     `json:"demographics"`
	Screens       []SizeCount     `json:"screens"`
	Windows       []SizeCount     `json:"windows"`
	Referrals     Referrals       `json:"referrals"`
}

// Build runs every analysis over the records of one version. records must
// already be filtered with ForVersion.
func Build(version string, records []Record) *Report {
	visitors := Visitors(records)
	screens, windows := Screens(records)
	return &Report{
		Version:       version,
		Events:        len(records),
		Visitors:      visitors,
		UsersPerGroup: UsersPerGroup(visitors),
		Popups:        Popups(records),
		Newsletter:    AnalyzeNewsletter(visitors),
		Overview:      AnalyzeOverview(visitors),
		Balance:       Balance(visitors),
		Demographics:  Demographics(records),
		Screens:       screens,
		Windows:       windows,
		Referrals:     AnalyzeReferrals(records, visitors),
	}
}
