package audit

import "time"

// The recorder turns one form action into the events to append. It is pure:
// it never reads the store, so the same input always yields the same events
// (modulo ids). Every event of one call shares the timestamp passed in.

// buildCreateEvents returns one create event per auditable field. Empty
// values are dropped unless the catalog marks the field AlwaysRecord.
func buildCreateEvents(cat *Catalog, t target, data FieldValues, ts time.Time, newID func() string) []AuditEvent {
	fields, values := foldFields(cat, data)

	var events []AuditEvent
	for _, field := range fields {
		value := CleanValue(values[field])
		if value == "" && !cat.AlwaysRecord(field) {
			continue
		}
		events = append(events, AuditEvent{
			ID:         newID(),
			Timestamp:  ts,
			CampaignID: t.campaignID,
			EntityType: t.entityType,
			EntityID:   t.entityID,
			Action:     ActionCreate,
			Field:      field,
			NewValue:   value,
			User:       t.user,
		})
	}
	return events
}

// buildEditEvents returns one edit event per canonical field whose cleaned
// value changed. Unchanged fields, including empty-to-empty, produce nothing,
// so renaming a legacy key to its canonical key with the same value is not
// an edit. OldValue is set only when the field was present in before with a
// non-nil value.
func buildEditEvents(cat *Catalog, t target, before, after FieldValues, ts time.Time, newID func() string) []AuditEvent {
	beforeFields, priors := foldFields(cat, before)
	afterFields, currents := foldFields(cat, after)

	fields := beforeFields
	for _, f := range afterFields {
		if _, ok := priors[f]; !ok {
			fields = append(fields, f)
		}
	}

	var events []AuditEvent
	for _, field := range cat.SortKeys(fields) {
		prior, hadPrior := priors[field]
		oldValue := CleanValue(prior)
		newValue := CleanValue(currents[field])
		// Equal values cover the empty-to-empty case too.
		if oldValue == newValue {
			continue
		}

		ev := AuditEvent{
			ID:         newID(),
			Timestamp:  ts,
			CampaignID: t.campaignID,
			EntityType: t.entityType,
			EntityID:   t.entityID,
			Action:     ActionEdit,
			Field:      field,
			NewValue:   newValue,
			User:       t.user,
		}
		if hadPrior && prior != nil {
			ev.OldValue = &oldValue
		}
		events = append(events, ev)
	}
	return events
}

// foldFields re-keys m by canonical field, dropping internal fields. When a
// canonical key and its aliases are both present, the canonical key's value
// wins unless it is empty and an alias holds a value. fields lists the
// canonical keys in catalog order.
func foldFields(cat *Catalog, m FieldValues) (fields []string, values map[string]any) {
	values = make(map[string]any, len(m))
	for _, raw := range cat.SortKeys(keysOf(m)) {
		if cat.IsInternal(raw) {
			continue
		}
		field := cat.Canonical(raw)
		v := m[raw]

		current, seen := values[field]
		switch {
		case !seen:
			fields = append(fields, field)
			values[field] = v
		case CleanValue(current) == "" && CleanValue(v) != "":
			values[field] = v
		case raw == field && CleanValue(v) != "":
			values[field] = v
		}
	}
	return fields, values
}

func keysOf(m FieldValues) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
