package extensions

import "sort"

// ProviderTypeModel is the only provider type currently registered.
const ProviderTypeModel = "model"

// ProviderKey identifies one provider registration slot.
type ProviderKey struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ProviderConflict records a registration that lost its slot.
type ProviderConflict struct {
	Key    ProviderKey `json:"key"`
	Winner string      `json:"winner"`
	Loser  string      `json:"loser"`
}

// ProviderReport summarizes a provider registration pass, suitable for UI
// display.
type ProviderReport struct {
	Registered []ProviderKey      `json:"registered"`
	Conflicts  []ProviderConflict `json:"conflicts"`
	Totals     map[string]int     `json:"totals"`
}

// Registration is a registered provider with its owner.
type Registration struct {
	Key     ProviderKey
	Owner   string
	Factory any
}

// RegisterProviders merges extension-declared providers with built-ins.
// Built-ins always win their slot; among extensions, first wins in
// module-name order. Only model-type providers register; other types are
// silently skipped. Returns the live set and a report.
func (m *Manager) RegisterProviders(builtins map[ProviderKey]any) (map[ProviderKey]Registration, *ProviderReport) {
	registered := make(map[ProviderKey]Registration)
	report := &ProviderReport{Totals: make(map[string]int)}

	keys := make([]ProviderKey, 0, len(builtins))
	for key := range builtins {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Name < keys[j].Name
	})
	for _, key := range keys {
		registered[key] = Registration{Key: key, Owner: "builtin", Factory: builtins[key]}
		report.Registered = append(report.Registered, key)
		report.Totals[key.Type]++
	}

	for _, l := range m.Extensions() {
		src, ok := l.Extension.(ProviderSource)
		if !ok {
			continue
		}
		for _, spec := range src.Providers() {
			if spec.Type != ProviderTypeModel {
				continue
			}
			key := ProviderKey{Type: spec.Type, Name: spec.Name}
			if existing, taken := registered[key]; taken {
				report.Conflicts = append(report.Conflicts, ProviderConflict{
					Key:    key,
					Winner: existing.Owner,
					Loser:  l.Metadata.Name,
				})
				continue
			}
			registered[key] = Registration{Key: key, Owner: l.Metadata.Name, Factory: spec.Factory}
			report.Registered = append(report.Registered, key)
			report.Totals[key.Type]++
		}
	}
	return registered, report
}
