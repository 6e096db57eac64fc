// Package ml implements the fitted models behind risk assessment: a feature
// scaler, an isolation forest for anomaly scoring and a random forest
// classifier. Trees are stored as flat node arrays, built once at fit time
// and traversed read-only afterwards, so fitted models are safe for
// concurrent use.
package ml
