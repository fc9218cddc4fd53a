package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() Plan {
	return Plan{
		ID:           "rdp-standard",
		Name:         "RDP Standard",
		Family:       FamilyRDP,
		CPUCores:     2,
		RAMGB:        4,
		StorageGB:    80,
		BandwidthTB:  2,
		PriceMonthly: 2000,
		Active:       true,
		Visible:      true,
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
		err    error
	}{
		{"valid", func(p *Plan) {}, nil},
		{"free plan", func(p *Plan) { p.PriceMonthly = 0 }, nil},
		{"missing id", func(p *Plan) { p.ID = "" }, ErrPlanIDRequired},
		{"missing name", func(p *Plan) { p.Name = "" }, ErrPlanNameMissing},
		{"bad family", func(p *Plan) { p.Family = "GPU" }, ErrInvalidFamily},
		{"negative price", func(p *Plan) { p.PriceMonthly = -1 }, ErrNegativePrice},
		{"negative ram", func(p *Plan) { p.RAMGB = -4 }, ErrNegativeQuota},
		{"negative bandwidth", func(p *Plan) { p.BandwidthTB = -1 }, ErrNegativeQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(&p)
			err := p.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("rdp")
	require.NoError(t, err)
	assert.Equal(t, FamilyRDP, f)

	f, err = ParseFamily(" VPS ")
	require.NoError(t, err)
	assert.Equal(t, FamilyVPS, f)

	_, err = ParseFamily("bare-metal")
	assert.ErrorIs(t, err, ErrInvalidFamily)
}

func TestFamily_DefaultUsername(t *testing.T) {
	assert.Equal(t, "Administrator", FamilyRDP.DefaultUsername())
	assert.Equal(t, "root", FamilyVPS.DefaultUsername())
}

func TestDatacenter_Matches(t *testing.T) {
	dc := Datacenter{Name: "Frankfurt", Code: "fra1", Active: true}
	assert.True(t, dc.Matches("Frankfurt"))
	assert.True(t, dc.Matches("frankfurt"))
	assert.True(t, dc.Matches("FRA1"))
	assert.False(t, dc.Matches("Amsterdam"))
}

func TestOSTemplate_SupportsPlan(t *testing.T) {
	plan := validPlan()

	assert.True(t, OSTemplate{Name: "Windows Server 2022", Family: FamilyRDP, MinRAMGB: 4, Active: true}.SupportsPlan(plan))
	assert.False(t, OSTemplate{Name: "Windows Server 2025", Family: FamilyRDP, MinRAMGB: 8, Active: true}.SupportsPlan(plan))
	assert.False(t, OSTemplate{Name: "Ubuntu 22.04", Family: FamilyVPS, MinRAMGB: 1, Active: true}.SupportsPlan(plan))
	assert.False(t, OSTemplate{Name: "Windows Server 2016", Family: FamilyRDP, MinRAMGB: 2, Active: false}.SupportsPlan(plan))
}
