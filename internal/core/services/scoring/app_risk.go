package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// permissionWeights is the fixed per-permission contribution to an app's 0-100 risk.
var permissionWeights = map[string]int{
	"SEND_SMS":                   25,
	"READ_SMS":                   15,
	"RECEIVE_SMS":                10,
	"SYSTEM_ALERT_WINDOW":        20,
	"REQUEST_INSTALL_PACKAGES":   20,
	"BIND_ACCESSIBILITY_SERVICE": 25,
	"BIND_DEVICE_ADMIN":          25,
	"READ_CALL_LOG":              15,
	"PROCESS_OUTGOING_CALLS":     15,
	"ACCESS_BACKGROUND_LOCATION": 15,
	"READ_CONTACTS":              10,
	"RECORD_AUDIO":               10,
	"QUERY_ALL_PACKAGES":         10,
	"CAMERA":                     5,
	"ACCESS_FINE_LOCATION":       5,
	"READ_PHONE_STATE":           5,
}

// permissionAliases maps shorthand names seen in inventories to canonical permissions.
var permissionAliases = map[string]string{
	"SYSTEM_OVERLAY":      "SYSTEM_ALERT_WINDOW",
	"INSTALL_PACKAGES":    "REQUEST_INSTALL_PACKAGES",
	"LOCATION_BACKGROUND": "ACCESS_BACKGROUND_LOCATION",
	"ACCESSIBILITY":       "BIND_ACCESSIBILITY_SERVICE",
	"DEVICE_ADMIN":        "BIND_DEVICE_ADMIN",
	"CONTACTS":            "READ_CONTACTS",
	"MIC":                 "RECORD_AUDIO",
}

type permissionCombo struct {
	name  string
	perms []string
	bonus int
}

// permissionCombos add weight when sensitive permissions appear together.
var permissionCombos = []permissionCombo{
	{name: "sms+overlay+install", perms: []string{"SEND_SMS", "SYSTEM_ALERT_WINDOW", "REQUEST_INSTALL_PACKAGES"}, bonus: 30},
	{name: "overlay+accessibility", perms: []string{"SYSTEM_ALERT_WINDOW", "BIND_ACCESSIBILITY_SERVICE"}, bonus: 25},
	{name: "sms-read+accessibility", perms: []string{"READ_SMS", "BIND_ACCESSIBILITY_SERVICE"}, bonus: 20},
	{name: "contacts+background-location", perms: []string{"READ_CONTACTS", "ACCESS_BACKGROUND_LOCATION"}, bonus: 20},
}

// AppRiskScorer evaluates the installed-application inventory of a device.
type AppRiskScorer struct {
	p AppRiskParams
}

// NewAppRiskScorer creates the application risk scorer.
func NewAppRiskScorer(p AppRiskParams) *AppRiskScorer {
	return &AppRiskScorer{p: p}
}

func (s *AppRiskScorer) Channel() domain.Channel { return domain.ChannelAppRisk }

func (s *AppRiskScorer) Score(_ *domain.DeviceProfile, snap domain.ChannelSnapshot) domain.VectorScore {
	at := snap.ObservedAt
	if snap.Apps == nil || len(snap.Apps.Apps) == 0 {
		return domain.InsufficientScore(domain.ChannelAppRisk, snap.DeviceID, at, "empty application inventory")
	}

	assessments := s.AssessAll(snap.Apps.Apps)
	top := assessments[0]

	var evidence []string
	flagged := 0
	for _, a := range assessments {
		if a.RiskScore <= s.p.WarningCut {
			break
		}
		flagged++
		if len(evidence) < 5 {
			evidence = append(evidence, describeAssessment(a))
		}
	}
	evidence = append([]string{fmt.Sprintf("%d of %d apps above risk %d", flagged, len(assessments), s.p.WarningCut)}, evidence...)

	status := domain.StatusSafe
	switch {
	case top.RiskScore > s.p.MaliciousCut:
		status = domain.StatusCritical
	case top.RiskScore > s.p.WarningCut:
		status = domain.StatusWarning
	}

	return domain.NewVectorScore(domain.ChannelAppRisk, snap.DeviceID, float64(top.RiskScore)/100, status, at, evidence...)
}

// AssessAll rates every app and returns them ordered by descending risk.
func (s *AppRiskScorer) AssessAll(apps []domain.InstalledApp) []domain.AppAssessment {
	out := make([]domain.AppAssessment, 0, len(apps))
	for _, app := range apps {
		out = append(out, s.Assess(app))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out
}

// Assess maps one app's permissions and flags onto the 0-100 rule table.
func (s *AppRiskScorer) Assess(app domain.InstalledApp) domain.AppAssessment {
	granted := make(map[string]bool, len(app.Permissions))
	for _, p := range app.Permissions {
		granted[canonicalPermission(p)] = true
	}

	risk := 0
	var reasons []string
	for perm := range granted {
		risk += permissionWeights[perm]
	}
	for _, combo := range permissionCombos {
		if hasAll(granted, combo.perms) {
			risk += combo.bonus
			reasons = append(reasons, combo.name)
		}
	}
	if app.SignatureMatch {
		risk += s.p.SignatureBonus
		reasons = append(reasons, "known malware signature")
	}
	for _, flag := range app.HeuristicFlags {
		if strings.TrimSpace(flag) == "" {
			continue
		}
		risk += s.p.HeuristicBonus
		reasons = append(reasons, "heuristic: "+flag)
	}

	if risk > 100 {
		risk = 100
	}
	return domain.AppAssessment{
		Package:     app.Package,
		RiskScore:   risk,
		IsMalicious: risk > s.p.MaliciousCut,
		Reasons:     reasons,
	}
}

func canonicalPermission(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	p = strings.TrimPrefix(p, "ANDROID.PERMISSION.")
	if alias, ok := permissionAliases[p]; ok {
		return alias
	}
	return p
}

func hasAll(granted map[string]bool, perms []string) bool {
	for _, p := range perms {
		if !granted[p] {
			return false
		}
	}
	return true
}

func describeAssessment(a domain.AppAssessment) string {
	label := "suspicious"
	if a.IsMalicious {
		label = "malicious"
	}
	if len(a.Reasons) == 0 {
		return fmt.Sprintf("%s risk %d/100 (%s)", a.Package, a.RiskScore, label)
	}
	return fmt.Sprintf("%s risk %d/100 (%s): %s", a.Package, a.RiskScore, label, strings.Join(a.Reasons, ", "))
}
