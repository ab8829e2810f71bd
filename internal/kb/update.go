package kb

import (
	"fmt"
	"os"
	"time"

	"github.com/project-guardian/guardian/internal/lockfile"
)

// UpdateRecord applies fields to the record file for id under the
// exclusive lock. Only keys present in fields are changed; unknown keys
// are rejected rather than silently dropped. Status, severity, and
// priority values are validated against the record kind's enums before
// the write. Returns the updated record.
func (k *KB) UpdateRecord(id string, fields map[string]any, opts lockfile.Options) (Record, error) {
	kind, err := KindForID(id)
	if err != nil {
		return nil, err
	}

	path := k.RecordPath(kind, id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("record %s not found", id)
	}

	var rec Record
	switch kind {
	case KindBug:
		rec, err = updateRecordFile[Bug](path, id, fields, applyBugFields, opts)
	case KindRequirement:
		rec, err = updateRecordFile[Requirement](path, id, fields, applyRequirementFields, opts)
	case KindDecision:
		rec, err = updateRecordFile[Decision](path, id, fields, applyDecisionFields, opts)
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	// Tag edits must land in the tag index, or old tags keep resolving
	// to the bug and new ones never do.
	if b, ok := rec.(*Bug); ok {
		if err := k.UpdateBugIndex(b, opts); err != nil {
			return rec, fmt.Errorf("record updated but index refresh failed: %w", err)
		}
	}
	k.txLog().Log("update", path, fields)
	return rec, nil
}

func updateRecordFile[T any, PT recordPtr[T]](path, id string, fields map[string]any, apply func(PT, map[string]any) error, opts lockfile.Options) (Record, error) {
	var result PT
	err := lockfile.Update(path, *new(T), func(current T) (T, error) {
		rec := PT(&current)
		if rec.RecordID() != id {
			return current, fmt.Errorf("record file %s holds id %q, expected %q", path, rec.RecordID(), id)
		}
		if err := apply(rec, fields); err != nil {
			return current, err
		}
		if err := rec.Validate(); err != nil {
			return current, err
		}
		result = rec
		return current, nil
	}, opts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyBugFields(b *Bug, fields map[string]any) error {
	for key, val := range fields {
		switch key {
		case "status":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.Status = s
			if s == "resolved" || s == "closed" {
				b.FixedAt = time.Now().UTC().Format(time.RFC3339)
			}
		case "severity":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.Severity = s
		case "solution":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.Solution = s
		case "root_cause":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.RootCause = s
		case "fixed_in_commit":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.FixedInCommit = s
		case "introduced_in_commit":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			b.IntroducedInCommit = s
		case "tags":
			tags, err := stringSliceField(key, val)
			if err != nil {
				return err
			}
			b.Tags = tags
		default:
			return fmt.Errorf("cannot update field %q on a bug record", key)
		}
	}
	return nil
}

func applyRequirementFields(r *Requirement, fields map[string]any) error {
	for key, val := range fields {
		switch key {
		case "status":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			r.Status = s
		case "priority":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			r.Priority = s
		case "description":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			r.Description = s
		case "rationale":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			r.Rationale = s
		case "tags":
			tags, err := stringSliceField(key, val)
			if err != nil {
				return err
			}
			r.Tags = tags
		default:
			return fmt.Errorf("cannot update field %q on a requirement record", key)
		}
	}
	return nil
}

func applyDecisionFields(d *Decision, fields map[string]any) error {
	for key, val := range fields {
		switch key {
		case "status":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			d.Status = s
		case "consequences":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			d.Consequences = s
		case "rationale":
			s, err := stringField(key, val)
			if err != nil {
				return err
			}
			d.Rationale = s
		case "tags":
			tags, err := stringSliceField(key, val)
			if err != nil {
				return err
			}
			d.Tags = tags
		default:
			return fmt.Errorf("cannot update field %q on a decision record", key)
		}
	}
	return nil
}

func stringField(key string, val any) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("field %q requires a string value, got %T", key, val)
	}
	return s, nil
}

func stringSliceField(key string, val any) ([]string, error) {
	switch v := val.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q requires string elements, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q requires a string list, got %T", key, val)
	}
}
