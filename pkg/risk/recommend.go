package risk

// AnomalyRecommendation is appended for entities flagged as anomalous.
const AnomalyRecommendation = "Investigate anomalous behavior patterns"

var (
	criticalActions = []string{
		"Immediate security audit required",
		"Isolate system until vulnerabilities are patched",
		"Enable advanced threat detection",
		"Implement emergency response procedures",
	}
	highActions = []string{
		"Schedule security assessment within 24 hours",
		"Review and update security policies",
		"Enable additional monitoring",
		"Conduct penetration testing",
	}
	mediumActions = []string{
		"Regular security monitoring recommended",
		"Update security configurations",
		"Review access controls",
		"Schedule routine maintenance",
	}
	baselineActions = []string{
		"Maintain current security posture",
		"Continue regular updates",
		"Monitor for changes",
		"Document security baseline",
	}
)

// Recommend returns the actions for the score tier of a, plus the anomaly
// investigation when a is anomalous. Tiers are exclusive at their lower
// bound: a score of exactly 80 is high, not critical.
func Recommend(a *Assessment) []string {
	var tier []string
	switch {
	case a.RiskScore > 80:
		tier = criticalActions
	case a.RiskScore > 60:
		tier = highActions
	case a.RiskScore > 40:
		tier = mediumActions
	default:
		tier = baselineActions
	}

	list := make([]string, 0, len(tier)+1)
	list = append(list, tier...)
	if a.IsAnomaly {
		list = append(list, AnomalyRecommendation)
	}
	return list
}
