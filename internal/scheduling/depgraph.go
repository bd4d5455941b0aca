package scheduling

// ResolveOrder produces a schedulable ordering of the requested series. A
// series that declares startAfterSeriesId must come after the series it
// references, because its earliest candidate day depends on where that
// series' occurrences land. Independent series keep their declaration order
// so results are deterministic.
//
// The graph is an arena of nodes with index-based edges; no pointers between
// series. Kahn's algorithm yields the order, and whatever survives it with a
// nonzero indegree is part of a cycle.
//
// Among ready series, a lower sameDaySequence goes first: the search honors
// the sequence hint by constraining later series against placements that
// already exist, which only works if the lower-sequenced series is searched
// first.
func ResolveOrder(reqs []AppointmentRequest) ([]AppointmentRequest, error) {
	byID := make(map[string]int, len(reqs))
	for i, r := range reqs {
		byID[r.SeriesID] = i
	}

	// prereq[i] is the index this series must follow, -1 if independent.
	prereq := make([]int, len(reqs))
	dependents := make([][]int, len(reqs))
	indegree := make([]int, len(reqs))
	for i, r := range reqs {
		prereq[i] = -1
		if r.Pattern == nil || r.Pattern.StartAfterSeriesID == "" {
			continue
		}
		ref, ok := byID[r.Pattern.StartAfterSeriesID]
		if !ok {
			return nil, &UnknownSeriesReferenceError{
				SeriesID:  r.SeriesID,
				Reference: r.Pattern.StartAfterSeriesID,
			}
		}
		prereq[i] = ref
		dependents[ref] = append(dependents[ref], i)
		indegree[i]++
	}

	order := make([]AppointmentRequest, 0, len(reqs))
	done := make([]bool, len(reqs))
	for {
		next := -1
		for i := range reqs {
			if done[i] || indegree[i] != 0 {
				continue
			}
			if next == -1 || beforeInSequence(reqs[i], i, reqs[next], next) {
				next = i
			}
		}
		if next == -1 {
			break
		}
		done[next] = true
		order = append(order, reqs[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	if len(order) < len(reqs) {
		return nil, &DependencyCycleError{Cycle: extractCycle(reqs, prereq, done)}
	}
	return order, nil
}

func beforeInSequence(a AppointmentRequest, ai int, b AppointmentRequest, bi int) bool {
	if a.SameDaySequence != b.SameDaySequence {
		return a.SameDaySequence < b.SameDaySequence
	}
	return ai < bi
}

// extractCycle walks the prereq chain from any unfinished node until it
// revisits one, then names the loop in dependency order.
func extractCycle(reqs []AppointmentRequest, prereq []int, done []bool) []string {
	start := -1
	for i := range reqs {
		if !done[i] {
			start = i
			break
		}
	}

	seen := make(map[int]int)
	path := []int{}
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			path = path[at:]
			break
		}
		seen[cur] = len(path)
		path = append(path, cur)
		cur = prereq[cur]
	}

	names := make([]string, 0, len(path)+1)
	for i := len(path) - 1; i >= 0; i-- {
		names = append(names, reqs[path[i]].SeriesID)
	}
	names = append(names, names[0])
	return names
}
