package aggregator

import (
	"sort"

	"reception-agent-go/internal/types"
)

// Stats summarizes stored calls for the reviewer dashboard.
type Stats struct {
	Total            int                    `json:"total"`
	ByPriority       map[types.Priority]int `json:"by_priority"`
	ByDepartment     map[string]int         `json:"by_department"`
	HighPriorityRate float64                `json:"high_priority_rate"`
	TopDepartments   []DepartmentCount      `json:"top_departments"`
	WithPhone        int                    `json:"with_phone"`
}

type DepartmentCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

const topN = 3

func Aggregate(records []types.CallRecord) Stats {
	st := Stats{
		ByPriority:   map[types.Priority]int{},
		ByDepartment: map[string]int{},
	}
	for _, p := range types.Priorities {
		st.ByPriority[p] = 0
	}
	for _, r := range records {
		st.Total++
		st.ByPriority[r.Priority]++
		dept := r.Department
		if dept == "" {
			dept = types.UnknownDepartment
		}
		st.ByDepartment[dept]++
		if r.PhoneNumber != "" {
			st.WithPhone++
		}
	}
	if st.Total > 0 {
		st.HighPriorityRate = float64(st.ByPriority[types.PriorityHigh]) / float64(st.Total)
	}

	for d, c := range st.ByDepartment {
		st.TopDepartments = append(st.TopDepartments, DepartmentCount{Department: d, Count: c})
	}
	sort.Slice(st.TopDepartments, func(i, j int) bool {
		a, b := st.TopDepartments[i], st.TopDepartments[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Department < b.Department
	})
	if len(st.TopDepartments) > topN {
		st.TopDepartments = st.TopDepartments[:topN]
	}
	return st
}
