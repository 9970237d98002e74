package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reception-agent-go/internal/types"
)

func TestAggregate(t *testing.T) {
	recs := []types.CallRecord{
		{Department: "Billing", Priority: types.PriorityHigh, PhoneNumber: "9876543210"},
		{Department: "Billing", Priority: types.PriorityLow},
		{Department: "Sales", Priority: types.PriorityHigh},
		{Department: "", Priority: types.PriorityMedium},
		{Department: "Support", Priority: types.PriorityMedium},
	}
	st := Aggregate(recs)

	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.ByPriority[types.PriorityHigh])
	assert.Equal(t, 2, st.ByPriority[types.PriorityMedium])
	assert.Equal(t, 1, st.ByPriority[types.PriorityLow])
	assert.Equal(t, 1, st.ByDepartment[types.UnknownDepartment])
	assert.InDelta(t, 0.4, st.HighPriorityRate, 1e-9)
	assert.Equal(t, 1, st.WithPhone)
	assert.Equal(t, []DepartmentCount{
		{Department: "Billing", Count: 2},
		{Department: "Sales", Count: 1},
		{Department: "Support", Count: 1},
	}, st.TopDepartments)
}

func TestAggregateEmpty(t *testing.T) {
	st := Aggregate(nil)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.HighPriorityRate)
	assert.Len(t, st.ByPriority, 3)
	assert.Empty(t, st.TopDepartments)
}
