// Package feature defines the canonical numeric representation of a
// monitored network entity and parses raw entity records into it.
package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names in canonical order.
const (
	OpenPorts           = "open_ports"
	FailedLogins        = "failed_logins"
	NetworkTrafficMB    = "network_traffic_mb"
	CPUUsage            = "cpu_usage"
	MemoryUsage         = "memory_usage"
	DiskUsage           = "disk_usage"
	PatchLevel          = "patch_level"
	FirewallRules       = "firewall_rules"
	AntivirusStatus     = "antivirus_status"
	EncryptionLevel     = "encryption_level"
	UserPrivilegeLevel  = "user_privilege_level"
	ConnectionAttempts  = "connection_attempts"
	DataTransferAnomaly = "data_transfer_anomaly"
	LoginTimeAnomaly    = "login_time_anomaly"
	GeographicAnomaly   = "geographic_anomaly"
)

// Index positions of the fields inside a Vector.
const (
	IdxOpenPorts = iota
	IdxFailedLogins
	IdxNetworkTrafficMB
	IdxCPUUsage
	IdxMemoryUsage
	IdxDiskUsage
	IdxPatchLevel
	IdxFirewallRules
	IdxAntivirusStatus
	IdxEncryptionLevel
	IdxUserPrivilegeLevel
	IdxConnectionAttempts
	IdxDataTransferAnomaly
	IdxLoginTimeAnomaly
	IdxGeographicAnomaly

	// Count is the dimensionality of every Vector.
	Count
)

// Field describes one entity attribute: its domain and the value used when
// the attribute is absent. Defaults lean toward the safe end of the domain.
type Field struct {
	Name    string
	Min     float64
	Max     float64
	Integer bool
	Default float64
}

// Fields lists all attributes in canonical order.
var Fields = [Count]Field{
	{Name: OpenPorts, Min: 0, Max: 50, Integer: true, Default: 0},
	{Name: FailedLogins, Min: 0, Max: 100, Integer: true, Default: 0},
	{Name: NetworkTrafficMB, Min: 0, Max: 10000, Default: 0},
	{Name: CPUUsage, Min: 0, Max: 100, Default: 0},
	{Name: MemoryUsage, Min: 0, Max: 100, Default: 0},
	{Name: DiskUsage, Min: 0, Max: 100, Default: 0},
	{Name: PatchLevel, Min: 0, Max: 1, Default: 1},
	{Name: FirewallRules, Min: 0, Max: 200, Integer: true, Default: 0},
	{Name: AntivirusStatus, Min: 0, Max: 1, Integer: true, Default: 1},
	{Name: EncryptionLevel, Min: 0, Max: 1, Default: 1},
	{Name: UserPrivilegeLevel, Min: 1, Max: 5, Integer: true, Default: 3},
	{Name: ConnectionAttempts, Min: 0, Max: 1000, Integer: true, Default: 0},
	{Name: DataTransferAnomaly, Min: 0, Max: 1, Default: 0},
	{Name: LoginTimeAnomaly, Min: 0, Max: 1, Default: 0},
	{Name: GeographicAnomaly, Min: 0, Max: 1, Default: 0},
}

// Names returns the field names in canonical order.
func Names() []string {
	list := make([]string, 0, Count)
	for _, f := range Fields {
		list = append(list, f.Name)
	}
	return list
}

// Vector is a fixed-order numeric representation of an entity.
type Vector []float64

// Defaults returns a vector holding the default value of every field.
func Defaults() Vector {
	v := make(Vector, Count)
	for i, f := range Fields {
		v[i] = f.Default
	}
	return v
}

// Get returns the value of the named field.
func (v Vector) Get(name string) (float64, bool) {
	for i, f := range Fields {
		if f.Name == name && i < len(v) {
			return v[i], true
		}
	}
	return 0, false
}

// Map returns the vector keyed by field name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for i := 0; i < len(v) && i < Count; i++ {
		m[Fields[i].Name] = v[i]
	}
	return m
}

// ValidationError identifies an entity field holding a value that cannot be
// used as a number.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s (%v): %s", e.Field, e.Value, e.Reason)
}

// Parse builds a Vector from a raw entity record. Keys that are not entity
// attributes (entity_id, name, ip, ...) are ignored; missing attributes take
// their documented default.
func Parse(raw map[string]any) (Vector, error) {
	v := Defaults()
	for i, f := range Fields {
		val, ok := raw[f.Name]
		if !ok || val == nil {
			continue
		}
		n, err := toFloat(val)
		if err != nil {
			return nil, &ValidationError{Field: f.Name, Value: val, Reason: err.Error()}
		}
		v[i] = n
	}
	return v, nil
}

func toFloat(val any) (float64, error) {
	var n float64
	switch t := val.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int8:
		n = float64(t)
	case int16:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case uint:
		n = float64(t)
	case uint8:
		n = float64(t)
	case uint16:
		n = float64(t)
	case uint32:
		n = float64(t)
	case uint64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		n = f
	default:
		return 0, fmt.Errorf("unsupported type %T", val)
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return n, nil
}
