package market

import "agromarket/internal/models"

// mergeReconciled returns remote followed by the local-only listings of
// cached that the remote set does not already carry. Remote wins every id
// it supplies; relative order within each part is preserved.
func mergeReconciled(remote, cached []models.Listing) []models.Listing {
	seen := make(map[int]struct{}, len(remote))
	for _, l := range remote {
		seen[l.ID] = struct{}{}
	}

	merged := make([]models.Listing, 0, len(remote)+len(cached))
	merged = append(merged, remote...)
	for _, l := range cached {
		if !l.IsLocal() {
			continue
		}
		if _, dup := seen[l.ID]; dup {
			continue
		}
		merged = append(merged, l)
	}
	return merged
}
