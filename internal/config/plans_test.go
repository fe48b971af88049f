package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPlanCatalog(t *testing.T) {
	catalog := DefaultPlanCatalog()
	require.NoError(t, validatePlanCatalog(catalog))

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	free, ok := holder.FindByTier("free")
	require.True(t, ok)
	require.True(t, free.Metered)
	require.EqualValues(t, 10, free.Allotment)

	pro, ok := holder.FindByProduct("prod_pro")
	require.True(t, ok)
	require.Equal(t, "pro", pro.Tier)
	require.EqualValues(t, 500, pro.Allotment)

	flexible, ok := holder.FindByTier("flexible")
	require.True(t, ok)
	require.False(t, flexible.Metered)

	_, ok = holder.FindByProduct("prod_unknown")
	require.False(t, ok)

	_, ok = holder.FindByProduct("")
	require.False(t, ok)
}

func TestValidatePlanCatalogRejectsBadEntries(t *testing.T) {
	require.Error(t, validatePlanCatalog(PlanCatalog{}))

	require.Error(t, validatePlanCatalog(PlanCatalog{Plans: []Plan{
		{Tier: "", Metered: true, Allotment: 10},
	}}))

	require.Error(t, validatePlanCatalog(PlanCatalog{Plans: []Plan{
		{Tier: "free", Metered: true, Allotment: -1},
	}}))
}
