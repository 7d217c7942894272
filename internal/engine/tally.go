package engine

import "slices"

// TallyVotes counts each player's choice against the ballot pool and returns
// either a strict winner or the set of candidates tied for the lead. The tie
// set keeps pool order. A single-candidate pool resolves immediately without
// any votes. A round where everyone abstained comes back as a full-pool tie
// so the vote re-runs; abstention is a valid ballot and must not fault the
// room. An empty pool is ErrInvariant.
func TallyVotes(votes map[string]string, pool []string) (winner string, tie []string, err error) {
	if len(pool) == 0 {
		return "", nil, ErrInvariant
	}
	if len(pool) == 1 {
		return pool[0], nil, nil
	}

	counts := CountVotes(votes, pool)
	total := 0
	most := 0
	for _, n := range counts {
		total += n
		if n > most {
			most = n
		}
	}
	if total == 0 {
		return "", slices.Clone(pool), nil
	}

	var lead []string
	for _, c := range pool {
		if counts[c] == most {
			lead = append(lead, c)
		}
	}
	if len(lead) == 1 {
		return lead[0], nil, nil
	}
	return "", lead, nil
}

// CountVotes maps each pool candidate to its vote count. Choices outside the
// pool (stale votes from a wider round) are ignored.
func CountVotes(votes map[string]string, pool []string) map[string]int {
	counts := make(map[string]int, len(pool))
	for _, c := range pool {
		counts[c] = 0
	}
	for _, choice := range votes {
		if slices.Contains(pool, choice) {
			counts[choice]++
		}
	}
	return counts
}
