package risk

import (
	"github.com/mchmarny/riskctl/pkg/feature"
)

const (
	openPortsThreshold    = 20
	failedLoginsThreshold = 50
	patchLevelThreshold   = 0.8
	encryptionThreshold   = 0.7
	antivirusImpact       = 80
	maxImpact             = 100
)

// Factor is a rule-derived explanation of what contributes to an entity's
// risk.
type Factor struct {
	Factor         string  `json:"factor" yaml:"factor"`
	Impact         float64 `json:"impact" yaml:"impact"`
	Recommendation string  `json:"recommendation" yaml:"recommendation"`
}

// Factors evaluates the threshold rules against unscaled entity values.
// Every rule that applies contributes one factor, always in the same order.
func Factors(v feature.Vector) []Factor {
	factors := make([]Factor, 0)

	if ports := v[feature.IdxOpenPorts]; ports > openPortsThreshold {
		factors = append(factors, Factor{
			Factor:         "High number of open ports",
			Impact:         min(maxImpact, ports/50*100),
			Recommendation: "Close unnecessary ports and implement port scanning protection",
		})
	}

	if failed := v[feature.IdxFailedLogins]; failed > failedLoginsThreshold {
		factors = append(factors, Factor{
			Factor:         "Excessive failed login attempts",
			Impact:         min(maxImpact, failed/100*100),
			Recommendation: "Implement account lockout policies and monitor for brute force attacks",
		})
	}

	if patch := v[feature.IdxPatchLevel]; patch < patchLevelThreshold {
		factors = append(factors, Factor{
			Factor:         "Outdated software/patches",
			Impact:         (1 - patch) * 100,
			Recommendation: "Update system patches and implement automated patching",
		})
	}

	if v[feature.IdxAntivirusStatus] == 0 {
		factors = append(factors, Factor{
			Factor:         "Antivirus disabled",
			Impact:         antivirusImpact,
			Recommendation: "Enable and update antivirus protection",
		})
	}

	if enc := v[feature.IdxEncryptionLevel]; enc < encryptionThreshold {
		factors = append(factors, Factor{
			Factor:         "Weak encryption",
			Impact:         (1 - enc) * 80,
			Recommendation: "Implement stronger encryption protocols",
		})
	}

	return factors
}
