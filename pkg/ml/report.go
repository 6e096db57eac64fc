package ml

// ClassMetrics holds the per-class quality of a classifier.
type ClassMetrics struct {
	Label     int     `json:"label" yaml:"label"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`
}

// ClassificationReport summarizes predictions against known labels.
type ClassificationReport struct {
	Classes  []ClassMetrics `json:"classes" yaml:"classes"`
	Accuracy float64        `json:"accuracy" yaml:"accuracy"`
	Samples  int            `json:"samples" yaml:"samples"`
}

// Evaluate computes precision, recall and F1 for every label in labels.
// Undefined ratios (no predictions, no support) are reported as 0.
func Evaluate(yTrue, yPred []int, labels []int) *ClassificationReport {
	r := &ClassificationReport{
		Classes: make([]ClassMetrics, 0, len(labels)),
		Samples: len(yTrue),
	}

	correct := 0
	for i := range yTrue {
		if i < len(yPred) && yTrue[i] == yPred[i] {
			correct++
		}
	}
	if len(yTrue) > 0 {
		r.Accuracy = float64(correct) / float64(len(yTrue))
	}

	for _, label := range labels {
		var tp, fp, fn int
		for i := range yTrue {
			if i >= len(yPred) {
				break
			}
			switch {
			case yPred[i] == label && yTrue[i] == label:
				tp++
			case yPred[i] == label:
				fp++
			case yTrue[i] == label:
				fn++
			}
		}

		m := ClassMetrics{Label: label, Support: tp + fn}
		m.Precision = ratio(tp, tp+fp)
		m.Recall = ratio(tp, tp+fn)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}

	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
